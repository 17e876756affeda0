// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package loader extracts text from uploaded documents.
//
// A Registry maps each declared core.FileType to a Loader. Lookups for a
// type with no registered loader fail with core.ErrUnsupportedFileType, so
// adding a format means registering a loader and nothing else. Loaders
// return pages in document order; callers decide how to join them.
//
// PDF, CSV and plain text are read with langchaingo's document loaders.
// DOCX is read directly from the word/document.xml part of the archive.
package loader
