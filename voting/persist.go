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

package voting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	keyRoot      = "Voting"
	keyInfo      = "Info"
	keySources   = "Sources"
	keyChannels  = "Channels"
	keyRound     = "Round"
	keyVoters    = "Voters/Voters"
	keyVotes     = "Votes"
	keySeparator = "/"
)

func instancePrefix(instanceId string) string {
	return keyRoot + keySeparator + instanceId + keySeparator
}

func infoKey(instanceId string) string {
	return instancePrefix(instanceId) + keyInfo
}

func sourcesKey(instanceId string) string {
	return instancePrefix(instanceId) + keySources
}

func channelsKey(instanceId string) string {
	return instancePrefix(instanceId) + keyChannels
}

func roundKey(instanceId string) string {
	return instancePrefix(instanceId) + keyRound
}

func votersPrefix(instanceId string) string {
	return instancePrefix(instanceId) + keyVoters + keySeparator
}

func voterKey(instanceId string, voterId string) string {
	return votersPrefix(instanceId) + voterId
}

func votesPrefix(instanceId string) string {
	return instancePrefix(instanceId) + keyVotes + keySeparator
}

func voteKey(instanceId string, voteId string) string {
	return votesPrefix(instanceId) + voteId
}

// instanceIdFromInfoKey returns the instance id of a Voting/{iid}/Info key
func instanceIdFromInfoKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, keyRoot+keySeparator)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, keySeparator+keyInfo)
	if !ok || id == "" || strings.Contains(id, keySeparator) {
		return "", false
	}
	return id, true
}

// docStore binds a Store to a tenant and JSON-encodes documents
type docStore struct {
	store  Store
	tenant string
}

func (d docStore) put(ctx context.Context, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := d.store.Put(ctx, d.tenant, key, data); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// get decodes the document at key into doc. A missing document is reported
// as ErrDocumentNotFound
func (d docStore) get(ctx context.Context, key string, doc any) error {
	data, err := d.store.Get(ctx, d.tenant, key)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return err
		}
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (d docStore) delete(ctx context.Context, key string) error {
	if err := d.store.Delete(ctx, d.tenant, key); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (d docStore) listKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := d.store.ListKeys(ctx, d.tenant, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}
