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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/tally/database/types"
)

const (
	tracerName    = "github.com/blinklabs-io/tally/voting"
	maxNameLength = 64
)

type DirectoryConfig struct {
	Store        Store
	Sink         MessageSink
	Resolver     MembershipResolver
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Tenant       string
}

// Directory owns the voting instances of one tenant, their names and the
// voting channel claims
type Directory struct {
	config    DirectoryConfig
	docs      docStore
	logger    *slog.Logger
	metrics   *votingMetrics
	claims    *ChannelClaims
	tracer    trace.Tracer
	instances map[string]*Instance
	mu        sync.Mutex
}

func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Store == nil {
		return nil, errors.New("voting directory requires a store")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("voting directory requires a membership resolver")
	}
	if err := types.ValidateTenant(cfg.Tenant); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Directory{
		config:    cfg,
		docs:      docStore{store: cfg.Store, tenant: cfg.Tenant},
		logger:    cfg.Logger.With("component", "voting", "tenant", cfg.Tenant),
		metrics:   newVotingMetrics(cfg.PromRegistry),
		claims:    NewChannelClaims(),
		tracer:    otel.Tracer(tracerName),
		instances: make(map[string]*Instance),
	}, nil
}

func (d *Directory) startSpan(
	ctx context.Context,
	name string,
	attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tally.tenant", d.config.Tenant))
	return d.tracer.Start(
		ctx,
		"voting.Directory."+name,
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ValidateName checks that a name can be used for an instance
func ValidateName(name string) error {
	if name == "" || name != strings.TrimSpace(name) {
		return ErrInvalidName
	}
	if len(name) > maxNameLength {
		return ErrInvalidName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return ErrInvalidName
		}
	}
	return nil
}

// nameTaken reports whether another instance uses the name. Names are
// compared case-insensitively
func (d *Directory) nameTaken(name string, except string) bool {
	for id, inst := range d.instances {
		if id != except && strings.EqualFold(inst.name, name) {
			return true
		}
	}
	return false
}

// Load restores every instance of the tenant from the store. An instance
// which fails to load is skipped and its error returned
func (d *Directory) Load(ctx context.Context) (err error) {
	ctx, span := d.startSpan(ctx, "Load")
	defer func() { endSpan(span, err) }()
	keys, err := d.docs.listKeys(ctx, keyRoot+keySeparator)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, inst := range d.instances {
		inst.close()
	}
	clear(d.instances)
	var errs []error
	for _, key := range keys {
		instanceId, ok := instanceIdFromInfoKey(key)
		if !ok {
			continue
		}
		var info instanceInfo
		if err := d.docs.get(ctx, key, &info); err != nil {
			errs = append(errs, err)
			continue
		}
		info.ID = instanceId
		inst := newInstance(d, info)
		if err := inst.load(ctx); err != nil {
			inst.close()
			errs = append(errs, fmt.Errorf("load instance %s: %w", instanceId, err))
			continue
		}
		d.instances[instanceId] = inst
	}
	d.metrics.setInstances(len(d.instances))
	d.logger.Debug("loaded voting instances", "count", len(d.instances))
	return errors.Join(errs...)
}

// Create adds a new instance with a unique name
func (d *Directory) Create(ctx context.Context, name string) (_ *Instance, err error) {
	ctx, span := d.startSpan(ctx, "Create", attribute.String("tally.name", name))
	defer func() { endSpan(span, err) }()
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nameTaken(name, "") {
		return nil, ErrNameAlreadyTaken
	}
	info := instanceInfo{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.docs.put(ctx, infoKey(info.ID), info); err != nil {
		return nil, err
	}
	inst := newInstance(d, info)
	d.instances[info.ID] = inst
	d.metrics.setInstances(len(d.instances))
	d.logger.Info("voting instance created", "instance", info.ID, "name", name)
	return inst, nil
}

// Delete destroys an instance with all of its documents and releases its
// voting channels
func (d *Directory) Delete(ctx context.Context, instanceId string) (err error) {
	ctx, span := d.startSpan(ctx, "Delete", attribute.String("tally.instance", instanceId))
	defer func() { endSpan(span, err) }()
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.instances[instanceId]
	if !ok {
		return ErrInvalidInstanceId
	}
	keys, err := d.docs.listKeys(ctx, instancePrefix(instanceId))
	if err != nil {
		return err
	}
	// Without its Info document the instance no longer loads, so remaining
	// documents are only orphans
	if err := d.docs.delete(ctx, infoKey(instanceId)); err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		if key == infoKey(instanceId) {
			continue
		}
		if err := d.docs.delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	inst.close()
	delete(d.instances, instanceId)
	d.metrics.setInstances(len(d.instances))
	d.logger.Info("voting instance deleted", "instance", instanceId)
	return errors.Join(errs...)
}

// Rename changes the name of an instance
func (d *Directory) Rename(ctx context.Context, instanceId string, name string) (err error) {
	ctx, span := d.startSpan(
		ctx,
		"Rename",
		attribute.String("tally.instance", instanceId),
		attribute.String("tally.name", name),
	)
	defer func() { endSpan(span, err) }()
	if err := ValidateName(name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.instances[instanceId]
	if !ok {
		return ErrInvalidInstanceId
	}
	if d.nameTaken(name, instanceId) {
		return ErrNameAlreadyTaken
	}
	info := inst.info()
	info.Name = name
	if err := d.docs.put(ctx, infoKey(instanceId), info); err != nil {
		return err
	}
	inst.name = name
	return nil
}

func (d *Directory) Get(instanceId string) (*Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.instances[instanceId]
	if !ok {
		return nil, ErrInvalidInstanceId
	}
	return inst, nil
}

// GetByName looks up an instance by its case-insensitive name
func (d *Directory) GetByName(name string) (*Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, inst := range d.instances {
		if strings.EqualFold(inst.name, name) {
			return inst, nil
		}
	}
	return nil, ErrInvalidInstanceId
}

// ByVotingChannel returns the instance which claimed a voting channel
func (d *Directory) ByVotingChannel(channel string) (*Instance, error) {
	owner, ok := d.claims.Owner(channel)
	if !ok {
		return nil, ErrNotVotingChannel
	}
	return d.Get(owner)
}

// List returns the instances ordered by name
func (d *Directory) List() []*Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	ret := make([]*Instance, 0, len(d.instances))
	for _, inst := range d.instances {
		ret = append(ret, inst)
	}
	slices.SortFunc(ret, func(a, b *Instance) int {
		return strings.Compare(a.name, b.name)
	})
	return ret
}

// Claims returns the voting channel claims shared by the instances
func (d *Directory) Claims() *ChannelClaims {
	return d.claims
}

// Refresh reconciles the voters of every instance. A failing instance does
// not stop the others
func (d *Directory) Refresh(ctx context.Context) (err error) {
	ctx, span := d.startSpan(ctx, "Refresh")
	defer func() { endSpan(span, err) }()
	var errs []error
	for _, inst := range d.List() {
		if err := inst.Refresh(ctx); err != nil {
			d.logger.Warn(
				"voting instance refresh failed",
				"instance", inst.id,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("refresh instance %s: %w", inst.id, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops every instance bus
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, inst := range d.instances {
		inst.close()
	}
	clear(d.instances)
	d.metrics.setInstances(0)
}
