package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

// JobStatus is the lifecycle state of a treatment job.
type JobStatus string

// Job states. A job only ever moves forward through this list; failed can
// replace running.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

const (
	defaultFlowLPerMin       = 0.166
	defaultRemovalEfficiency = 0.95
	progressSteps            = 10
	minJobDuration           = 100 * time.Millisecond
)

// JobResult is set once a job completes.
type JobResult struct {
	FinalHardness float64 `json:"final_hardness_mg_l"`
	Device        string  `json:"device"`
	Area          string  `json:"area"`
	VolumeLiters  float64 `json:"volume_liters"`
}

// Job is a simulated treatment run.
type Job struct {
	ID               string     `json:"job_id"`
	Status           JobStatus  `json:"status"`
	Progress         int        `json:"progress"`
	Area             string     `json:"area"`
	Device           string     `json:"device"`
	VolumeLiters     float64    `json:"volume_liters"`
	EstimatedMinutes float64    `json:"estimated_minutes"`
	Result           *JobResult `json:"result"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (j Job) clone() Job {
	if j.Result != nil {
		r := *j.Result
		j.Result = &r
	}
	return j
}

// Registry is the process-local job table. Every access holds one mutex for
// the duration of the map operation only.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers job. The id must be unused.
func (r *Registry) Create(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	j := job.clone()
	r.jobs[job.ID] = &j
	return nil
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// Update applies fn to the stored job under the lock and reports whether the
// job exists. fn must not block.
func (r *Registry) Update(id string, fn func(*Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return false
	}
	fn(j)
	return true
}

// Len returns the number of jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// TreatFunc computes the hardness left after treating water of the given
// hardness at the given removal efficiency.
type TreatFunc func(hardness, efficiency float64) (float64, error)

// RemoveHardness is the default TreatFunc: a fixed fraction of the hardness
// is removed.
func RemoveHardness(hardness, efficiency float64) (float64, error) {
	return math.Max(0, (1-efficiency)*hardness), nil
}

// HardnessLookup resolves the current total hardness of an area.
type HardnessLookup interface {
	CurrentHardness(ctx context.Context, area string) (float64, error)
}

// LatestHardness reads the newest reading of an area from the data API.
type LatestHardness struct {
	Upstream Upstream
}

// CurrentHardness implements HardnessLookup.
func (l LatestHardness) CurrentHardness(ctx context.Context, area string) (float64, error) {
	history, err := l.Upstream.History(ctx, area, 1)
	if err != nil {
		return 0, err
	}
	if len(history.Data) == 0 {
		return 0, water.Errorf(water.ErrNotFound, "No data found for %s.", area)
	}
	return history.Data[len(history.Data)-1].TotalHardness, nil
}

// TreatmentRequest is the body of POST /start_treatment.
type TreatmentRequest struct {
	Area              string   `json:"area"`
	Device            string   `json:"device"`
	VolumeLiters      float64  `json:"volume_liters"`
	RemovalEfficiency *float64 `json:"removal_efficiency,omitempty"`
	FlowLPerMin       *float64 `json:"flow_L_per_min,omitempty"`
	DeviceProfileName string   `json:"device_profile_name,omitempty"`
}

// StartResult is returned when a job is accepted.
type StartResult struct {
	JobID            string  `json:"job_id"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
	Status           string  `json:"status"`
}

// TrackerConfig holds the configuration for the Tracker.
type TrackerConfig struct {
	Logger   *slog.Logger
	Registry *Registry
	Hardness HardnessLookup

	// Treat runs once progress reaches the end. Defaults to RemoveHardness.
	Treat TreatFunc

	// Optional metrics.
	Metrics *metrics.AnalyticsMetrics

	// TimeScale compresses job duration: at 1, one estimated minute takes one
	// second. Defaults to 1.
	TimeScale float64
}

// Tracker starts treatment jobs and reports on them.
type Tracker struct {
	logger    *slog.Logger
	registry  *Registry
	hardness  HardnessLookup
	treat     TreatFunc
	metrics   *metrics.AnalyticsMetrics
	timeScale float64
	wg        sync.WaitGroup
}

// NewTracker creates a new Tracker.
func NewTracker(cfg *TrackerConfig) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("tracker config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Hardness == nil {
		return nil, errors.New("hardness lookup cannot be nil")
	}

	if cfg.TimeScale < 0 {
		return nil, errors.New("time scale cannot be negative")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	scale := cfg.TimeScale
	if scale == 0 {
		scale = 1
	}

	treat := cfg.Treat
	if treat == nil {
		treat = RemoveHardness
	}

	return &Tracker{
		logger:    cfg.Logger,
		registry:  registry,
		hardness:  cfg.Hardness,
		treat:     treat,
		metrics:   cfg.Metrics,
		timeScale: scale,
	}, nil
}

// Start validates req, registers a queued job and runs it in the background.
func (t *Tracker) Start(ctx context.Context, req TreatmentRequest) (StartResult, error) {
	if req.Area == "" || req.Device == "" || !(req.VolumeLiters > 0) {
		return StartResult{}, water.Errorf(water.ErrValidation, "Missing parameters (area, device, volume_liters)")
	}

	efficiency := defaultRemovalEfficiency
	if req.RemovalEfficiency != nil {
		efficiency = *req.RemovalEfficiency
	}
	if !(efficiency > 0 && efficiency <= 1) {
		return StartResult{}, water.Errorf(water.ErrValidation, "removal_efficiency must be in (0, 1]")
	}

	flow := defaultFlowLPerMin
	if req.FlowLPerMin != nil {
		flow = *req.FlowLPerMin
	}
	if !(flow > 0) || math.IsInf(flow, 0) {
		return StartResult{}, water.Errorf(water.ErrValidation, "flow_L_per_min must be positive")
	}

	minutes := req.VolumeLiters / flow
	seconds := minutes / t.timeScale
	if !(seconds < math.MaxInt64/float64(time.Second)) {
		return StartResult{}, water.Errorf(water.ErrValidation, "volume_liters is too large for flow_L_per_min")
	}
	total := max(time.Duration(seconds*float64(time.Second)), minJobDuration)

	hardness, err := t.hardness.CurrentHardness(ctx, req.Area)
	if err != nil {
		t.logger.Warn("current hardness unavailable, assuming 0", "area", req.Area, "error", err)
		hardness = 0
	}

	now := time.Now().UTC()
	job := Job{
		ID:               uuid.NewString(),
		Status:           JobQueued,
		Area:             req.Area,
		Device:           req.Device,
		VolumeLiters:     req.VolumeLiters,
		EstimatedMinutes: minutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := t.registry.Create(job); err != nil {
		return StartResult{}, fmt.Errorf("failed to register job: %w", err)
	}

	if t.metrics != nil {
		t.metrics.JobsStartedTotal.Inc()
		t.metrics.JobsByStatus.WithLabelValues(string(JobQueued)).Inc()
	}

	t.logger.Info("treatment job queued",
		"job_id", job.ID,
		"area", req.Area,
		"device", req.Device,
		"volume_liters", req.VolumeLiters,
		"estimated_minutes", minutes,
	)

	t.wg.Add(1)
	go t.run(job.ID, total, hardness, efficiency, req)

	return StartResult{JobID: job.ID, EstimatedMinutes: minutes, Status: "started"}, nil
}

// Get returns a snapshot of the job or water.ErrNotFound.
func (t *Tracker) Get(id string) (Job, error) {
	job, ok := t.registry.Get(id)
	if !ok {
		return Job{}, water.Errorf(water.ErrNotFound, "Job not found")
	}
	return job, nil
}

// Wait blocks until every started job has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) run(id string, total time.Duration, hardness, efficiency float64, req TreatmentRequest) {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("treatment job panicked", "job_id", id, "panic", r)
			t.fail(id, fmt.Sprint(r))
		}
	}()

	t.transition(id, JobRunning, func(j *Job) { j.Progress = 0 })

	step := total / progressSteps

	for i := range progressSteps {
		time.Sleep(step)
		progress := (i + 1) * 100 / progressSteps
		t.registry.Update(id, func(j *Job) {
			if progress > j.Progress {
				j.Progress = progress
			}
			j.UpdatedAt = time.Now().UTC()
		})
	}

	final, err := t.treat(hardness, efficiency)
	if err != nil {
		t.logger.Error("treatment job failed", "job_id", id, "error", err)
		t.fail(id, err.Error())
		return
	}

	result := &JobResult{
		FinalHardness: water.Round2(final),
		Device:        req.Device,
		Area:          req.Area,
		VolumeLiters:  req.VolumeLiters,
	}
	t.transition(id, JobCompleted, func(j *Job) {
		j.Progress = 100
		j.Result = result
	})

	t.logger.Info("treatment job completed", "job_id", id, "final_hardness_mg_l", result.FinalHardness)
}

func (t *Tracker) fail(id, msg string) {
	t.transition(id, JobFailed, func(j *Job) { j.Error = msg })
}

func (t *Tracker) transition(id string, to JobStatus, fn func(*Job)) {
	var from JobStatus
	t.registry.Update(id, func(j *Job) {
		from = j.Status
		j.Status = to
		j.UpdatedAt = time.Now().UTC()
		fn(j)
	})

	if t.metrics != nil && from != "" && from != to {
		t.metrics.JobsByStatus.WithLabelValues(string(from)).Dec()
		t.metrics.JobsByStatus.WithLabelValues(string(to)).Inc()
	}
}
