/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package config reads the cluster-wide ClusterDefaults ConfigMap
// through a TTL-cached in-memory snapshot, so reconcilers do not hit the
// API server for it on every pass.
package config

import (
	"context"
	"strconv"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// DefaultCacheTTL bounds how long a cached snapshot is served before the
// ConfigMap is re-read.
const DefaultCacheTTL = 30 * time.Second

// ConfigMapName is the well-known name of the cluster-wide defaults
// ConfigMap.
const ConfigMapName = "cellmesh-config"

// ClusterDefaults holds cluster-wide defaults read from the
// cellmesh-config ConfigMap.
type ClusterDefaults struct {
	// CellImage is the container image CellController runs per Cell.
	CellImage string
	// Neo4jImage backs dedicated KnowledgeGraphs.
	Neo4jImage string
	// StuckStaleMinutes is how long a Running Cell may go without a
	// status.lastActive update before the staleness signal penalises it.
	StuckStaleMinutes int
	// StuckToolDiversityMin is the unique/total tool-call ratio below
	// which the diversity signal penalises a Cell.
	StuckToolDiversityMin float64
	// StuckMaxRepeatedPrompts is how many times one prompt hash may
	// repeat in the log window before the repetition signal penalises.
	StuckMaxRepeatedPrompts int
	// StuckAction names what CellController does on detection: warn | kill.
	StuckAction string
	// WarmPoolEnabled turns on pre-provisioning idle Cell pods per
	// (provider, model) instead of always cold-building on reconcile.
	WarmPoolEnabled bool
	// WarmPoolSize is the target number of idle pods per (provider,
	// model) key.
	WarmPoolSize int
	// WarmPoolImage overrides CellImage for warm pods; empty falls back
	// to CellImage.
	WarmPoolImage string
}

func defaults() ClusterDefaults {
	return ClusterDefaults{
		CellImage:               "ghcr.io/kais-io/cell:latest",
		Neo4jImage:              "neo4j:5-community",
		StuckStaleMinutes:       30,
		StuckToolDiversityMin:   0.3,
		StuckMaxRepeatedPrompts: 3,
		StuckAction:             "warn",
		WarmPoolEnabled:         false,
		WarmPoolSize:            0,
	}
}

// Cache is a TTL-cached ClusterDefaults reader, one per manager process
// (controllers share it rather than each re-reading the ConfigMap).
type Cache struct {
	client    client.Client
	namespace string
	ttl       time.Duration

	mu  sync.RWMutex
	at  time.Time
	val ClusterDefaults
}

// NewCache constructs a Cache reading cellmesh-config from namespace via c.
// A zero ttl selects DefaultCacheTTL.
func NewCache(c client.Client, namespace string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: c, namespace: namespace, ttl: ttl, val: defaults()}
}

// Get returns the cached ClusterDefaults, refreshing from the API server
// first if the cache has gone stale.
func (c *Cache) Get(ctx context.Context) ClusterDefaults {
	c.mu.RLock()
	fresh := time.Since(c.at) < c.ttl
	val := c.val
	c.mu.RUnlock()
	if fresh {
		return val
	}
	return c.refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) ClusterDefaults {
	d := defaults()

	cm := &corev1.ConfigMap{}
	err := c.client.Get(ctx, types.NamespacedName{Namespace: c.namespace, Name: ConfigMapName}, cm)
	if err == nil {
		if v, ok := cm.Data["cellImage"]; ok && v != "" {
			d.CellImage = v
		}
		if v, ok := cm.Data["neo4jImage"]; ok && v != "" {
			d.Neo4jImage = v
		}
		if v, ok := cm.Data["stuckStaleMinutes"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				d.StuckStaleMinutes = n
			}
		}
		if v, ok := cm.Data["stuckToolDiversityMin"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				d.StuckToolDiversityMin = f
			}
		}
		if v, ok := cm.Data["stuckMaxRepeatedPrompts"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				d.StuckMaxRepeatedPrompts = n
			}
		}
		if v, ok := cm.Data["stuckAction"]; ok && v != "" {
			d.StuckAction = v
		}
		if v, ok := cm.Data["warmPoolEnabled"]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				d.WarmPoolEnabled = b
			}
		}
		if v, ok := cm.Data["warmPoolSize"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				d.WarmPoolSize = n
			}
		}
		if v, ok := cm.Data["warmPoolImage"]; ok && v != "" {
			d.WarmPoolImage = v
		}
	}

	c.mu.Lock()
	c.val = d
	c.at = time.Now()
	c.mu.Unlock()
	return d
}
