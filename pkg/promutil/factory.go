// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package promutil

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Factory is the interface to create some native prometheus metric
type Factory interface {
	// NewCounter works like the function of the same name in the prometheus
	// package, but it automatically registers the Counter with the Factory's
	// Registerer. Panic if it can't register successfully.
	NewCounter(opts prometheus.CounterOpts) prometheus.Counter

	// NewCounterVec works like the function of the same name in the
	// prometheus, package but it automatically registers the CounterVec with
	// the Factory's Registerer. Panic if it can't register successfully.
	NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec

	// NewGauge works like the function of the same name in the prometheus
	// package, but it automatically registers the Gauge with the Factory's
	// Registerer. Panic if it can't register successfully.
	NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge

	// NewGaugeFunc works like the function of the same name in the prometheus
	// package, but it automatically registers the GaugeFunc with the
	// Factory's Registerer. Panic if it can't register successfully.
	NewGaugeFunc(opts prometheus.GaugeOpts, function func() float64) prometheus.GaugeFunc

	// NewGaugeVec works like the function of the same name in the prometheus
	// package but it automatically registers the GaugeVec with the Factory's
	// Registerer. Panic if it can't register successfully.
	NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec

	// NewHistogramVec works like the function of the same name in the
	// prometheus package but it automatically registers the HistogramVec
	// with the Factory's Registerer. Panic if it can't register successfully.
	NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec
}

// AutoRegisterFactory creates metrics, attaches its const labels and
// registers them to Registry under owner. Panic if it can't register
// successfully.
type AutoRegisterFactory struct {
	r           *Registry
	owner       string
	constLabels prometheus.Labels
}

// NewAutoRegisterFactory creates a AutoRegisterFactory.
func NewAutoRegisterFactory(r *Registry, owner string, constLabels prometheus.Labels) Factory {
	return &AutoRegisterFactory{
		r:           r,
		owner:       owner,
		constLabels: constLabels,
	}
}

// NewCounter implements Factory.NewCounter.
func (f *AutoRegisterFactory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.ConstLabels = f.withConstLabels(opts.ConstLabels)
	c := prometheus.NewCounter(opts)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewCounterVec implements Factory.NewCounterVec.
func (f *AutoRegisterFactory) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	opts.ConstLabels = f.withConstLabels(opts.ConstLabels)
	c := prometheus.NewCounterVec(opts, labelNames)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewGauge implements Factory.NewGauge.
func (f *AutoRegisterFactory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.ConstLabels = f.withConstLabels(opts.ConstLabels)
	c := prometheus.NewGauge(opts)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewGaugeFunc implements Factory.NewGaugeFunc.
func (f *AutoRegisterFactory) NewGaugeFunc(opts prometheus.GaugeOpts, function func() float64) prometheus.GaugeFunc {
	opts.ConstLabels = f.withConstLabels(opts.ConstLabels)
	c := prometheus.NewGaugeFunc(opts, function)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewGaugeVec implements Factory.NewGaugeVec.
func (f *AutoRegisterFactory) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	opts.ConstLabels = f.withConstLabels(opts.ConstLabels)
	c := prometheus.NewGaugeVec(opts, labelNames)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewHistogramVec implements Factory.NewHistogramVec.
func (f *AutoRegisterFactory) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	opts.ConstLabels = f.withConstLabels(opts.ConstLabels)
	c := prometheus.NewHistogramVec(opts, labelNames)
	f.r.MustRegister(f.owner, c)
	return c
}

func (f *AutoRegisterFactory) withConstLabels(labels prometheus.Labels) prometheus.Labels {
	if len(f.constLabels) == 0 {
		return labels
	}
	merged := make(prometheus.Labels, len(labels)+len(f.constLabels))
	for k, v := range labels {
		merged[k] = v
	}
	for k, v := range f.constLabels {
		merged[k] = v
	}
	return merged
}
