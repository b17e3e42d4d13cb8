package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adalundhe/gridvar/core/changelog"
	"github.com/adalundhe/gridvar/core/config"
	"github.com/adalundhe/gridvar/core/network"
	"github.com/adalundhe/gridvar/core/variant"
)

// Runner replays scenarios. One Runner can run many scenarios; each run gets
// a fresh network and change log.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	listeners []network.Listener

	variantMetrics   *variant.Metrics
	changelogMetrics *changelog.Metrics
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithListener attaches extra listeners to every network the runner builds,
// after the change log and before any entity exists.
func WithListener(listeners ...network.Listener) Option {
	return func(r *Runner) {
		r.listeners = append(r.listeners, listeners...)
	}
}

// WithRegisterer registers variant and change log metrics with reg once, for
// the lifetime of the runner.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Runner) {
		r.variantMetrics = variant.NewMetrics(reg)
		r.changelogMetrics = changelog.NewMetrics(reg)
	}
}

// NewRunner creates a runner. A nil cfg means config.DefaultConfig.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r := &Runner{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run is the state of one scenario replay.
type run struct {
	ctx     context.Context
	cfg     *config.Config
	network *network.Network
	log     *changelog.ChangeLog
	logger  *slog.Logger
}

// Run builds the scenario's network, replays its steps and reports the final
// state. The first failing step stops the run.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cfg := config.Overlay(r.cfg, s.Config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := IgnorePolicy(cfg.ChangeLog)
	if err != nil {
		return nil, err
	}

	n, err := network.New(s.Network,
		network.WithInitialVariant(cfg.Variants.InitialID),
		network.WithLogger(r.logger),
		network.WithVariantOptions(variant.WithMetrics(r.variantMetrics)),
	)
	if err != nil {
		return nil, err
	}

	log := changelog.New(n,
		changelog.WithIgnorePolicy(policy),
		changelog.WithCacheSize(cfg.ChangeLog.CacheSize),
		changelog.WithMetrics(r.changelogMetrics),
		changelog.WithLogger(r.logger),
	)
	defer log.Close()
	for _, l := range r.listeners {
		n.AddListener(l)
		defer n.RemoveListener(l)
	}

	st := &run{
		ctx:     ctx,
		cfg:     cfg,
		network: n,
		log:     log,
		logger:  r.logger.With(slog.String("network", s.Network)),
	}
	if cfg.Variants.MultiThread {
		st.ctx = n.Variants().EnableMultiThreadAccess(ctx)
	}

	if err := build(n, s); err != nil {
		return nil, err
	}
	st.logger.Info("scenario network built", slog.Int("entities", n.Count()))

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := st.apply(step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action(), err)
		}
		st.logger.Debug("scenario step applied", slog.Int("step", i+1), slog.String("action", step.Action()))
	}

	return st.report(s.Report)
}

// IgnorePolicy extends changelog.DefaultIgnorePolicy with the attributes
// named in cfg. Kind names are those of network.Kind.String.
func IgnorePolicy(cfg config.ChangeLogConfig) (*changelog.IgnorePolicy, error) {
	byKind := make(map[network.Kind][]string, len(cfg.IgnoredByKind))
	for name, attrs := range cfg.IgnoredByKind {
		kind, ok := network.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("changelog.ignored_by_kind: unknown kind %q: %w", name, config.ErrInvalidConfig)
		}
		byKind[kind] = attrs
	}
	return changelog.DefaultIgnorePolicy().With(cfg.IgnoredAttributes, byKind), nil
}

func build(n *network.Network, s *Scenario) error {
	for _, spec := range s.Buses {
		if _, err := n.NewBus(spec); err != nil {
			return err
		}
	}
	for _, spec := range s.Generators {
		if _, err := n.NewGenerator(spec); err != nil {
			return err
		}
	}
	for _, spec := range s.Loads {
		if _, err := n.NewLoad(spec); err != nil {
			return err
		}
	}
	for _, spec := range s.Shunts {
		if _, err := n.NewShuntCompensator(spec); err != nil {
			return err
		}
	}
	for _, spec := range s.Lines {
		if _, err := n.NewLine(spec); err != nil {
			return err
		}
	}
	for _, spec := range s.Transformers {
		if _, err := n.NewTwoWindingsTransformer(spec); err != nil {
			return err
		}
	}
	return nil
}

func (st *run) apply(step Step) error {
	vm := st.network.Variants()

	switch step.Action() {
	case actionClone:
		return vm.CloneVariant(step.Clone.Source, step.Clone.Targets...)
	case actionOverwrite:
		return vm.CloneVariantOverwrite(step.Overwrite.Source, step.Overwrite.Target)
	case actionUse:
		return vm.SetWorkingVariant(st.ctx, step.Use)
	case actionSet:
		return st.network.SetAttribute(st.ctx, step.Set.ID, step.Set.Attribute, step.Set.Value)
	case actionRemoveVariant:
		return vm.RemoveVariant(step.RemoveVariant)
	case actionRemove:
		return st.network.Remove(step.Remove)
	case actionParallel:
		return st.parallel(step.Parallel)
	}
	return ErrInvalidScenario
}

// parallel switches the network to multi-thread access if needed. The
// caller's working variant is kept.
func (st *run) parallel(p *ParallelStep) error {
	vm := st.network.Variants()
	if !vm.MultiThreadAccessEnabled() {
		st.ctx = vm.EnableMultiThreadAccess(st.ctx)
	}

	return variant.RunOnVariants(st.ctx, vm, p.Variants, st.cfg.Variants.WorkerLimit,
		func(ctx context.Context, id string) error {
			for _, set := range p.Set {
				if err := st.network.SetAttribute(ctx, set.ID, set.Attribute, set.Value); err != nil {
					return fmt.Errorf("variant %s: %w", id, err)
				}
			}
			return nil
		})
}

func (st *run) report(rep Report) (*Result, error) {
	vm := st.network.Variants()

	ids := rep.Variants
	if len(ids) == 0 {
		ids = vm.VariantIDs()
	}

	result := &Result{
		Network:    st.network.ID(),
		InstanceID: st.network.InstanceID().String(),
		Sequence:   st.log.Sequence(),
		Base:       changeStrings(st.log.BaseChanges()),
	}

	for _, id := range ids {
		ctx, err := st.pin(id)
		if err != nil {
			return nil, err
		}
		values, err := st.values(ctx, rep.Attributes)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", id, err)
		}
		result.Variants = append(result.Variants, VariantResult{
			ID:       id,
			Override: st.log.HasOverride(id),
			Values:   values,
			Changes:  changeStrings(st.log.ChangesForVariant(id)),
		})
	}
	return result, nil
}

// pin returns a context whose working variant is id. In single-thread mode
// this moves the global working variant.
func (st *run) pin(id string) (context.Context, error) {
	vm := st.network.Variants()
	ctx := st.ctx
	if vm.MultiThreadAccessEnabled() {
		ctx = variant.WithWorkerSlot(ctx)
	}
	if err := vm.SetWorkingVariant(ctx, id); err != nil {
		return nil, err
	}
	return ctx, nil
}

func (st *run) values(ctx context.Context, selected map[string][]string) (map[string]map[string]any, error) {
	targets := selected
	if len(targets) == 0 {
		targets = make(map[string][]string)
		for _, e := range st.network.Identifiables() {
			targets[e.ID()] = nil
		}
	}

	values := make(map[string]map[string]any, len(targets))
	for id, attrs := range targets {
		e, err := st.network.Identifiable(id)
		if err != nil {
			return nil, err
		}
		if len(attrs) == 0 {
			attrs = network.Attributes(e.Kind())
		}
		entity := make(map[string]any, len(attrs))
		for _, attr := range attrs {
			v, err := st.network.Attribute(ctx, id, attr)
			if err != nil {
				return nil, err
			}
			entity[attr] = v
		}
		values[id] = entity
	}
	return values, nil
}

// Result is the state of a network after a run.
type Result struct {
	Network    string          `json:"network"`
	InstanceID string          `json:"instance_id"`
	Sequence   uint64          `json:"sequence"`
	Base       []string        `json:"base_changes"`
	Variants   []VariantResult `json:"variants"`
}

type VariantResult struct {
	ID       string                    `json:"id"`
	Override bool                      `json:"override"`
	Values   map[string]map[string]any `json:"values"`
	Changes  []string                  `json:"changes"`
}

// Variant returns the result for id, or nil.
func (r *Result) Variant(id string) *VariantResult {
	for i := range r.Variants {
		if r.Variants[i].ID == id {
			return &r.Variants[i]
		}
	}
	return nil
}

// EntityIDs lists the entities reported for the variant, sorted.
func (v *VariantResult) EntityIDs() []string {
	ids := make([]string, 0, len(v.Values))
	for id := range v.Values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func changeStrings(changes []changelog.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.String()
	}
	return out
}
