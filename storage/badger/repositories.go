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

package badger

// Repositories bundles every BadgerDB-backed port over one backend.
type Repositories struct {
	Backend  *Backend
	Sessions *SessionRepository
	Assets   *AssetRepository
	Index    *VectorIndex
}

// NewRepositories builds all repositories over an open backend.
func NewRepositories(backend *Backend) (*Repositories, error) {
	sessions, err := NewSessionRepository(backend)
	if err != nil {
		return nil, err
	}
	assets, err := NewAssetRepository(backend)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Backend:  backend,
		Sessions: sessions,
		Assets:   assets,
		Index:    NewVectorIndex(backend),
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories() (*Repositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	repos, err := NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return repos, nil
}

// Close closes the repositories and the backend.
func (r *Repositories) Close() error {
	r.Index.Close()
	r.Assets.Close()
	r.Sessions.Close()
	return r.Backend.Close()
}
