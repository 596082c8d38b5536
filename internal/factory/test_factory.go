package factory

import (
	"net"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wordgroups/internal/config"
	"github.com/mcoot/wordgroups/internal/dependencies/mocks"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/services/accounts"
	"github.com/mcoot/wordgroups/internal/storage/memory"
	"github.com/mcoot/wordgroups/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Memory     *memory.Storage
}

// TestConfig returns a loopback, memory-backed configuration without the HTTP API
func TestConfig() config.Config {
	cfg := config.Default()
	cfg.TCP.Host = "127.0.0.1"
	cfg.TCP.Port = 0
	cfg.TCP.Workers = 4
	cfg.UDP.Host = "127.0.0.1"
	cfg.HTTP.Enabled = false
	cfg.Storage.Type = config.StorageMemory
	cfg.Admin.Password = "sesame"
	cfg.Rounds.Duration = time.Minute
	return cfg
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp(cfg config.Config) (*TestApp, error) {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	udpConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	app := newWithDependencies(cfg, dependencies{
		store:    store,
		clock:    mockClock,
		random:   mockRandom,
		udpConn:  udpConn,
		accounts: accounts.Config{BcryptCost: bcrypt.MinCost},
	}, testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
	}, nil
}

// LoadTestRounds loads the sample rounds with the given ids
func (t *TestApp) LoadTestRounds(ids ...model.RoundID) error {
	rounds := make([]model.RoundDefinition, len(ids))
	for i, id := range ids {
		rounds[i] = testutil.SampleRound(id)
	}
	return t.PuzzleService.LoadRounds(rounds)
}
