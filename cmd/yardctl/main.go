// Command yardctl runs a yard simulation: a directory facilitator, a fixed
// number of slot managers, and a generated batch of container agents that
// allocate a berth, sit for a random dwell, and either self-deallocate at
// their scheduled departure or get released by a truck's pickup request.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/config"
	"github.com/portstack/yardctl/container"
	"github.com/portstack/yardctl/df"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/observability"
	"github.com/portstack/yardctl/port"
	"github.com/portstack/yardctl/slot"
	"github.com/portstack/yardctl/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		domain          = flag.String("domain", "yard", "transport domain suffix for every generated endpoint")
		configPath      = flag.String("config", "", "optional YAML config file; nonzero tuning flags override its values")
		slotCount       = flag.Int("slot-count", 0, "number of slot managers (0 = config default)")
		maxSlotHeight   = flag.Int("max-slot-height", 0, "stack capacity per slot (0 = config default)")
		containerCount  = flag.Int("container-count", 0, "total containers to generate (0 = config default)")
		minArrivalDelta = flag.Int("min-arrival-delta", 0, "minimum seconds between batch arrivals (0 = config default)")
		maxArrivalDelta = flag.Int("max-arrival-delta", 0, "maximum seconds between batch arrivals (0 = config default)")
		minDepDelta     = flag.Int("min-departure-delta", 0, "minimum seconds from arrival to departure (0 = config default)")
		maxDepDelta     = flag.Int("max-departure-delta", 0, "maximum seconds from arrival to departure (0 = config default)")
		maxBatch        = flag.Int("max-containers-in-batch", 0, "maximum containers released per arrival batch (0 = config default)")
		otelEndpoint    = flag.String("otel-endpoint", "", "OTLP gRPC collector endpoint; tracing disabled when empty")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "yardctl: config:", err)
		return 1
	}
	applyOverrides(cfg, *slotCount, *maxSlotHeight, *containerCount, *minArrivalDelta, *maxArrivalDelta, *minDepDelta, *maxDepDelta, *maxBatch)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "yardctl: invalid config:", err)
		return 1
	}

	logger := logging.New().Bind("component", "yardctl")

	if *otelEndpoint != "" {
		topology := observability.YardTopology{
			Domain:        *domain,
			SlotCount:     cfg.SlotCount,
			MaxSlotHeight: cfg.MaxSlotHeight,
		}
		shutdown, err := observability.InitTracer("yardctl", *otelEndpoint, "dev", topology)
		if err != nil {
			fmt.Fprintln(os.Stderr, "yardctl: tracer init:", err)
			return 1
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := simulate(ctx, cfg, *domain, logger); err != nil {
		logger.Error("simulation_failed", "error", err.Error())
		return 1
	}
	logger.Info("simulation_complete")
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadYAML(path)
}

func applyOverrides(cfg *config.Config, slotCount, maxSlotHeight, containerCount, minArrival, maxArrival, minDep, maxDep, maxBatch int) {
	if slotCount > 0 {
		cfg.SlotCount = slotCount
	}
	if maxSlotHeight > 0 {
		cfg.MaxSlotHeight = maxSlotHeight
	}
	if containerCount > 0 {
		cfg.ContainerCount = containerCount
	}
	if minArrival > 0 {
		cfg.MinArrivalDeltaSec = minArrival
	}
	if maxArrival > 0 {
		cfg.MaxArrivalDeltaSec = maxArrival
	}
	if minDep > 0 {
		cfg.MinDepartureDeltaSec = minDep
	}
	if maxDep > 0 {
		cfg.MaxDepartureDeltaSec = maxDep
	}
	if maxBatch > 0 {
		cfg.MaxContainersInBatch = maxBatch
	}
}

// simulate wires the directory facilitator, every slot manager, the port
// manager, and a generated batch of containers, then blocks until every
// container has departed or ctx is cancelled.
func simulate(ctx context.Context, cfg *config.Config, domain string, logger logging.Logger) error {
	bus := transport.NewInMemoryBus(256)
	dfJID := acl.Endpoint(fmt.Sprintf("df@%s", domain))

	facilitator, err := df.New(bus, dfJID, logger.Bind("agent", "df"))
	if err != nil {
		return fmt.Errorf("starting directory facilitator: %w", err)
	}
	go func() { _ = facilitator.Run(ctx) }()

	for i := 0; i < cfg.SlotCount; i++ {
		jid := acl.Endpoint(fmt.Sprintf("slot-%d@%s", i, domain))
		mgr, err := slot.New(ctx, bus, jid, fmt.Sprintf("%d", i), cfg.MaxSlotHeight, dfJID, logger.Bind("agent", "slot", "slot_id", i))
		if err != nil {
			return fmt.Errorf("starting slot %d: %w", i, err)
		}
		go func() { _ = mgr.Run(ctx) }()
	}

	portJID := acl.Endpoint(fmt.Sprintf("port@%s", domain))
	portManager, err := port.New(bus, portJID, logger.Bind("agent", "port"))
	if err != nil {
		return fmt.Errorf("starting port manager: %w", err)
	}
	go func() { _ = portManager.Run(ctx) }()

	schedule := generateArrivals(cfg)
	logger.Info("workload_generated", "containers", len(schedule))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error
	var jids []acl.Endpoint

	for _, c := range schedule {
		c := c
		jid := acl.Endpoint(fmt.Sprintf("%s@%s", c.id, domain))
		mu.Lock()
		jids = append(jids, jid)
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			waitUntil(ctx, c.arrival)

			agentInstance, err := container.New(ctx, bus, jid, c.id, c.departure, dfJID, logger.Bind("agent", "container", "container_id", c.id))
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				logger.Warn("container_allocation_failed", "container", c.id, "error", err.Error())
				return
			}
			if err := agentInstance.Run(ctx); err != nil && ctx.Err() == nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				logger.Warn("container_terminated_with_error", "container", c.id, "error", err.Error())
			}
		}()
	}

	if len(schedule) > 0 {
		lastDeparture := schedule[len(schedule)-1].departure
		truckArrival := lastDeparture.Add(time.Duration(cfg.DepartureTimeAccuracy) * time.Second)
		mu.Lock()
		truckJIDs := append([]acl.Endpoint(nil), jids...)
		mu.Unlock()
		truck, err := port.NewTruck(bus, acl.Endpoint(fmt.Sprintf("truck@%s", domain)), portJID, truckArrival, truckJIDs, logger.Bind("agent", "truck"))
		if err == nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := truck.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("truck_run_failed", "error", err.Error())
				}
			}()
		}
	}

	wg.Wait()

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d containers failed: %w", len(failures), len(schedule), failures[0])
	}
	return nil
}

func waitUntil(ctx context.Context, t time.Time) {
	if wait := time.Until(t); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
}

type scheduledContainer struct {
	id        string
	arrival   time.Time
	departure time.Time
}

// generateArrivals mirrors the original workload generator's batching
// scheme: containers show up in randomly-sized batches separated by a
// random arrival delta, each with a departure time a random delta past its
// own arrival.
func generateArrivals(cfg *config.Config) []scheduledContainer {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now()

	var out []scheduledContainer
	arrival := now
	n := 0
	for n < cfg.ContainerCount {
		batchSize := 1 + rng.Intn(cfg.MaxContainersInBatch)
		if n+batchSize > cfg.ContainerCount {
			batchSize = cfg.ContainerCount - n
		}
		for i := 0; i < batchSize; i++ {
			depDelta := cfg.MinDepartureDeltaSec + rng.Intn(cfg.MaxDepartureDeltaSec-cfg.MinDepartureDeltaSec+1)
			out = append(out, scheduledContainer{
				id:        fmt.Sprintf("container-%d", n),
				arrival:   arrival,
				departure: arrival.Add(time.Duration(depDelta) * time.Second),
			})
			n++
		}
		arrivalDelta := cfg.MinArrivalDeltaSec + rng.Intn(cfg.MaxArrivalDeltaSec-cfg.MinArrivalDeltaSec+1)
		arrival = arrival.Add(time.Duration(arrivalDelta) * time.Second)
	}
	return out
}
