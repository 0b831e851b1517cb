package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare_backend/cache"
	"ashare_backend/models"
)

// fakeRunner counts task executions and can block tasks on a gate
type fakeRunner struct {
	mu         sync.Mutex
	stockList  int
	marketData int
	indexData  int
	syncAll    int
	shutdowns  int
	gate       chan struct{} // when set, SyncMarketData blocks until closed
	fail       bool
}

func (r *fakeRunner) result(kind models.TaskKind) *models.SyncResult {
	return &models.SyncResult{Task: kind, Success: !r.fail}
}

func (r *fakeRunner) SyncStockList() *models.SyncResult {
	r.mu.Lock()
	r.stockList++
	r.mu.Unlock()
	return r.result(models.TaskStockList)
}

func (r *fakeRunner) SyncMarketData(codes []string) *models.SyncResult {
	r.mu.Lock()
	r.marketData++
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return r.result(models.TaskMarketData)
}

func (r *fakeRunner) SyncIndexData() *models.SyncResult {
	r.mu.Lock()
	r.indexData++
	r.mu.Unlock()
	return r.result(models.TaskIndexData)
}

func (r *fakeRunner) SyncAll() *models.SyncAllResult {
	r.mu.Lock()
	r.syncAll++
	r.mu.Unlock()
	return &models.SyncAllResult{Success: true}
}

func (r *fakeRunner) CacheInfo() (cache.Info, error) { return cache.Info{StockListCount: 7}, nil }

func (r *fakeRunner) Shutdown() {
	r.mu.Lock()
	r.shutdowns++
	r.mu.Unlock()
}

func (r *fakeRunner) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stockList, r.marketData, r.indexData
}

func shortConfig() Config {
	return Config{
		StockListInterval:  time.Hour,
		MarketDataInterval: 20 * time.Millisecond,
		IndexDataInterval:  time.Hour,
		Tick:               5 * time.Millisecond,
		ShutdownWait:       time.Second,
	}
}

func TestStartSchedulesFirstRunsOneIntervalOut(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, DefaultConfig)
	base := time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	s.Start()
	defer s.Stop()

	status := s.GetStatus()
	assert.True(t, status.Running)
	next := status.Tasks[models.TaskMarketData].NextRun
	require.NotNil(t, next)
	assert.Equal(t, base.Add(DefaultConfig.MarketDataInterval), *next)
	assert.Nil(t, status.Tasks[models.TaskMarketData].LastRun)
}

func TestLoopDispatchesDueTasks(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, shortConfig())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, market, _ := runner.counts()
		return market >= 2
	}, time.Second, time.Millisecond)

	stockList, _, indexData := runner.counts()
	assert.Equal(t, 0, stockList, "hour-interval task must not fire yet")
	assert.Equal(t, 0, indexData)
}

func TestOverlapSuppression(t *testing.T) {
	gate := make(chan struct{})
	runner := &fakeRunner{gate: gate}
	s := NewScheduler(runner, shortConfig())

	s.Start()

	// The first dispatch blocks on the gate; later ticks must not stack
	// further runs behind it
	require.Eventually(t, func() bool {
		_, market, _ := runner.counts()
		return market == 1
	}, time.Second, time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	_, market, _ := runner.counts()
	assert.Equal(t, 1, market)

	close(gate)
	s.Stop()
}

func TestStartTwiceIsNoop(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, shortConfig())

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.shutdowns, "repeated stops must not shut down twice")
}

func TestTriggerSyncRunsSynchronously(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, DefaultConfig)

	out, err := s.TriggerSync(models.TaskStockList)
	require.NoError(t, err)
	result, ok := out.(*models.SyncResult)
	require.True(t, ok)
	assert.True(t, result.Success)

	status := s.GetStatus()
	snap := status.Tasks[models.TaskStockList]
	assert.NotNil(t, snap.LastRun)
	require.NotNil(t, snap.Success)
	assert.True(t, *snap.Success)
}

func TestTriggerSyncUnknownKind(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, DefaultConfig)
	_, err := s.TriggerSync(models.TaskKind("bogus"))
	assert.Error(t, err)
}

func TestTriggerSyncConflictsWithRunningTask(t *testing.T) {
	gate := make(chan struct{})
	runner := &fakeRunner{gate: gate}
	s := NewScheduler(runner, DefaultConfig)

	done := make(chan struct{})
	go func() {
		s.TriggerSync(models.TaskMarketData)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return s.GetStatus().Tasks[models.TaskMarketData].Running
	}, time.Second, time.Millisecond)

	_, err := s.TriggerSync(models.TaskMarketData)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	close(gate)
	<-done
}

func TestTriggerSyncAllDelegates(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, DefaultConfig)

	out, err := s.TriggerSync(models.TaskAll)
	require.NoError(t, err)
	_, ok := out.(*models.SyncAllResult)
	assert.True(t, ok)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.syncAll)
}

func TestTriggerSyncRecordsFailure(t *testing.T) {
	runner := &fakeRunner{fail: true}
	s := NewScheduler(runner, DefaultConfig)

	_, err := s.TriggerSync(models.TaskIndexData)
	require.NoError(t, err)

	snap := s.GetStatus().Tasks[models.TaskIndexData]
	require.NotNil(t, snap.Success)
	assert.False(t, *snap.Success)
}

func TestGetStatusIncludesCacheInfo(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, DefaultConfig)
	status := s.GetStatus()
	require.NotNil(t, status.Cache)
	assert.EqualValues(t, 7, status.Cache.StockListCount)
}

func TestUpdateConfigPartial(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, DefaultConfig)

	interval := 10 * time.Minute
	cfg, err := s.UpdateConfig(ConfigUpdate{MarketDataInterval: &interval})
	require.NoError(t, err)
	assert.Equal(t, interval, cfg.MarketDataInterval)
	assert.Equal(t, DefaultConfig.StockListInterval, cfg.StockListInterval)
}

func TestUpdateConfigRejectsNonPositive(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, DefaultConfig)

	bad := -time.Minute
	_, err := s.UpdateConfig(ConfigUpdate{IndexDataInterval: &bad})
	assert.Error(t, err)

	// The failed update must not change anything
	assert.Equal(t, DefaultConfig.IndexDataInterval, s.GetStatus().Config.IndexDataInterval)
}

func TestStopWaitsForRunningTasks(t *testing.T) {
	gate := make(chan struct{})
	runner := &fakeRunner{gate: gate}
	s := NewScheduler(runner, shortConfig())

	s.Start()
	require.Eventually(t, func() bool {
		_, market, _ := runner.counts()
		return market == 1
	}, time.Second, time.Millisecond)

	// Release the task shortly after stop begins waiting
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gate)
	}()

	s.Stop()
	assert.False(t, s.Running())
	assert.False(t, s.GetStatus().Tasks[models.TaskMarketData].Running)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.shutdowns)
}
