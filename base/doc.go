// Copyright 2024 phyg Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*

Package base provides base data structures and functions for phyg.

The base data structures and functions include:

* Random Generator

* Sparse Vectors and Incidence Matrices

* Numeric Computing

* Index of External Ids

* CSV Records

*/
package base
