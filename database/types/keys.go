// Copyright 2025 Blink Labs Software
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

package types

import "strings"

// KeySeparator separates the tenant from the document key in flat keyspaces
const KeySeparator = "/"

// ValidateTenant checks that a tenant can be used as a keyspace prefix
func ValidateTenant(tenant string) error {
	if tenant == "" || strings.Contains(tenant, KeySeparator) {
		return ErrInvalidTenant
	}
	return nil
}

// ValidateKey checks the tenant and the document key
func ValidateKey(tenant string, key string) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

// FlatKey joins a tenant and a document key for stores with a single flat
// keyspace (badger, object stores, redis)
func FlatKey(tenant string, key string) string {
	return tenant + KeySeparator + key
}

// TrimFlatKey strips the tenant prefix from a flat key
func TrimFlatKey(tenant string, flatKey string) string {
	return strings.TrimPrefix(flatKey, tenant+KeySeparator)
}
