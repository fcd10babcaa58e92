package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"healthguide-go/internal/model"
	"healthguide-go/pkg/log"
)

// ProviderBackend 是机构查询所需的远端能力。
type ProviderBackend interface {
	LookupProviders(ctx context.Context, loc model.Location) ([]model.Provider, error)
}

// ProviderLookupClient 按位置查询附近机构，同一会话同一时间最多一个在途查询。
type ProviderLookupClient struct {
	backend       ProviderBackend
	timeout       time.Duration
	defaultRadius int
	slot          inflightSlot
}

// NewProviderLookupClient 创建一个新的 ProviderLookupClient。
func NewProviderLookupClient(backend ProviderBackend, timeout time.Duration, defaultRadius int) *ProviderLookupClient {
	if defaultRadius <= 0 {
		defaultRadius = 5
	}
	return &ProviderLookupClient{
		backend:       backend,
		timeout:       timeout,
		defaultRadius: defaultRadius,
		slot:          newInflightSlot(),
	}
}

// Pending 报告是否有在途查询。
func (c *ProviderLookupClient) Pending() bool {
	return c.slot.busy()
}

// PendingLookup 持有在途槽位，直到调用方在应用结果后调用 Done。
type PendingLookup struct {
	client   *ProviderLookupClient
	location model.Location
	release  sync.Once
}

// Location 返回规范化后的查询位置。
func (p *PendingLookup) Location() model.Location {
	return p.location
}

// Begin 校验位置并占用在途槽位。半径缺省时使用默认值。
func (c *ProviderLookupClient) Begin(loc model.Location) (*PendingLookup, error) {
	if !loc.Valid() {
		return nil, ErrInvalidLocation
	}
	if loc.Radius <= 0 {
		loc.Radius = c.defaultRadius
	}
	if !c.slot.tryAcquire() {
		return nil, ErrLookupPending
	}
	return &PendingLookup{client: c, location: loc}, nil
}

// Done 释放在途槽位，可重复调用。
func (p *PendingLookup) Done() {
	p.release.Do(p.client.slot.release)
}

// Do 发起查询，结果保持服务端顺序。失败时返回包装了 ErrLookupFailed 的错误。
// Do 不释放槽位，由调用方在结果生效后调用 Done。
func (p *PendingLookup) Do(ctx context.Context) ([]model.Provider, error) {
	c := p.client
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.backend == nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, errors.New("no triage backend configured"))
	}

	providers, err := c.backend.LookupProviders(ctx, p.location)
	if err != nil {
		log.Warnw("[ProviderLookup] 机构查询失败", "latitude", p.location.Latitude, "longitude", p.location.Longitude, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	out := make([]model.Provider, len(providers))
	copy(out, providers)
	return out, nil
}

// Lookup 是 Begin 与 Do 的组合。
func (c *ProviderLookupClient) Lookup(ctx context.Context, loc model.Location) ([]model.Provider, error) {
	pending, err := c.Begin(loc)
	if err != nil {
		return nil, err
	}
	defer pending.Done()
	return pending.Do(ctx)
}
