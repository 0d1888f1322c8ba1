package trader

import (
	"context"
	"testing"
	"time"

	"vwap-options-bot/internal/broker"
	"vwap-options-bot/internal/config"
	"vwap-options-bot/internal/database"
	"vwap-options-bot/internal/marketdata"
	"vwap-options-bot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockGateway is a mock implementation of the broker.Interface.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	args := m.Called(symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.Quote), args.Error(1)
}

func (m *MockGateway) GetOptionChain(ctx context.Context, symbol string) ([]broker.OptionContract, error) {
	args := m.Called(symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.OptionContract), args.Error(1)
}

func (m *MockGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	args := m.Called(req.Action, req.OptionSymbol, req.ContractCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.OrderResponse), args.Error(1)
}

func (m *MockGateway) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	args := m.Called(orderID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) GetPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.BrokerPosition), args.Error(1)
}

// fakeSource feeds ticks to the engine from a buffered channel and counts
// session resets.
type fakeSource struct {
	ch     chan marketdata.PriceTick
	resets int
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan marketdata.PriceTick, 16)}
}

func (f *fakeSource) Run(ctx context.Context) error      { <-ctx.Done(); return ctx.Err() }
func (f *fakeSource) Ticks() <-chan marketdata.PriceTick { return f.ch }
func (f *fakeSource) ResetSession()                      { f.resets++ }
func (f *fakeSource) push(tick marketdata.PriceTick)     { f.ch <- tick }

// setupEngine creates a full test environment with a mock gateway, fake
// source and in-memory DB.
func setupEngine(t *testing.T) (*Engine, *MockGateway, *fakeSource, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		Trading: config.Trading{
			Symbol:               "XYZ",
			ContractCount:        1,
			ContractMultiplier:   100,
			CycleInterval:        60,
			ProfitTargetFraction: 0.5,
			StopLossFraction:     2.0,
		},
		Session: config.Session{
			Open:               "09:30",
			Close:              "16:00",
			CloseBufferMinutes: 15,
			Timezone:           "UTC",
		},
	}

	gateway := new(MockGateway)
	source := newFakeSource()
	engine, err := NewEngine(zap.NewNop(), cfg, gateway, source, db)
	require.NoError(t, err)
	require.NoError(t, engine.ledger.Load())

	return engine, gateway, source, db
}

var (
	engineDay  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	activeTime = engineDay.Add(11 * time.Hour)                 // 11:00, Active
	bufferTime = engineDay.Add(15*time.Hour + 50*time.Minute)  // 15:50, CloseOnly
	sameDayExp = engineDay
)

func crossTick(n int, ma, vwap float64) marketdata.PriceTick {
	return marketdata.PriceTick{
		Timestamp:     activeTime.Add(time.Duration(n) * time.Minute),
		Price:         vwap,
		Volume:        100,
		MovingAverage: ma,
		SessionVWAP:   vwap,
		HasMA:         true,
		HasVWAP:       true,
	}
}

func testChain() []broker.OptionContract {
	return []broker.OptionContract{
		{OptionSymbol: "XYZP100", OptionType: models.OptionTypePut, Strike: 100, Expiration: sameDayExp, Bid: 5.0, Ask: 5.2},
		{OptionSymbol: "XYZC100", OptionType: models.OptionTypeCall, Strike: 100, Expiration: sameDayExp, Bid: 4.8, Ask: 5.0},
	}
}

// cycleWith feeds one tick and runs one cycle, the way ticks arrive in
// production: one sample consumed per cycle.
func cycleWith(t *testing.T, e *Engine, source *fakeSource, tick marketdata.PriceTick, state SessionState) {
	t.Helper()
	source.push(tick)
	require.NoError(t, e.Cycle(context.Background(), tick.Timestamp, state))
}

// openPutAt establishes an open PUT via a warm-up tick and a down-cross.
func openPutAt(t *testing.T, e *Engine, gateway *MockGateway, source *fakeSource) {
	t.Helper()
	gateway.On("GetOptionChain", "XYZ").Return(testChain(), nil)
	gateway.On("SubmitOrder", broker.ActionSellToOpen, "XYZP100", 1).
		Return(&broker.OrderResponse{OrderID: "o-1", Status: broker.OrderStatusFilled, FillPrice: 5.0}, nil).Once()
	gateway.On("GetQuote", "XYZP100").Return(&broker.Quote{Bid: 5.0, Ask: 5.0}, nil)

	cycleWith(t, e, source, crossTick(0, 100.5, 100.0), StateActive)
	cycleWith(t, e, source, crossTick(1, 99.8, 100.0), StateActive)
	require.NotNil(t, e.ledger.Open())
}

func TestEngine_SessionStartResetsFeedAndDetector(t *testing.T) {
	// Arrange
	engine, _, source, _ := setupEngine(t)

	// Act: first in-session cycle starts the session, later ones do not
	require.NoError(t, engine.Cycle(context.Background(), activeTime, StateActive))
	require.NoError(t, engine.Cycle(context.Background(), activeTime.Add(time.Minute), StateActive))

	// Assert: pre-open accumulation in the source is cleared exactly once
	assert.Equal(t, 1, source.resets)
}

func TestEngine_DownCrossOpensPut(t *testing.T) {
	// Arrange
	engine, gateway, source, db := setupEngine(t)
	gateway.On("GetOptionChain", "XYZ").Return(testChain(), nil)
	gateway.On("SubmitOrder", broker.ActionSellToOpen, "XYZP100", 1).
		Return(&broker.OrderResponse{OrderID: "o-1", Status: broker.OrderStatusFilled, FillPrice: 5.0}, nil)
	gateway.On("GetQuote", "XYZP100").Return(&broker.Quote{Bid: 4.9, Ask: 5.1}, nil)

	// Act: first tick establishes the sign, second crosses down
	cycleWith(t, engine, source, crossTick(0, 100.5, 100.0), StateActive)
	cycleWith(t, engine, source, crossTick(1, 99.8, 100.0), StateActive)

	// Assert
	gateway.AssertExpectations(t)
	pos := engine.ledger.Open()
	require.NotNil(t, pos)
	assert.Equal(t, models.OptionTypePut, pos.OptionType)
	assert.Equal(t, models.PositionStatusOpen, pos.Status)

	var signals []models.Signal
	require.NoError(t, db.Find(&signals).Error)
	require.Len(t, signals, 1)
	assert.True(t, signals[0].ActionTaken)
	require.NotNil(t, signals[0].PositionID)
	assert.Equal(t, pos.PositionID, *signals[0].PositionID)
}

func TestEngine_CrossInCloseOnlyIsSuppressed(t *testing.T) {
	// Arrange & Act: a fresh up-cross arrives inside the close buffer
	engine, gateway, source, db := setupEngine(t)
	cycleWith(t, engine, source, crossTick(0, 99.5, 100.0), StateCloseOnly)
	cycleWith(t, engine, source, crossTick(1, 100.4, 100.0), StateCloseOnly)

	// Assert: signal recorded with no action, no trade created
	gateway.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything, mock.Anything)
	assert.Nil(t, engine.ledger.Open())

	var signals []models.Signal
	require.NoError(t, db.Find(&signals).Error)
	require.Len(t, signals, 1)
	assert.False(t, signals[0].ActionTaken)
	assert.Equal(t, ReasonSessionState, signals[0].Reason)

	var trades int64
	require.NoError(t, db.Model(&models.Trade{}).Count(&trades).Error)
	assert.Zero(t, trades)
}

func TestEngine_SameSideCrossWithOpenPosition(t *testing.T) {
	// Arrange: open PUT, then the detector restarts mid-day and emits the
	// same down direction again
	engine, gateway, source, db := setupEngine(t)
	openPutAt(t, engine, gateway, source)

	// Act
	engine.detector.Reset()
	cycleWith(t, engine, source, crossTick(2, 100.5, 100.0), StateActive)
	cycleWith(t, engine, source, crossTick(3, 99.8, 100.0), StateActive)

	// Assert: suppressed, single position remains
	var signals []models.Signal
	require.NoError(t, db.Order("id").Find(&signals).Error)
	require.Len(t, signals, 2)
	assert.False(t, signals[1].ActionTaken)
	assert.Equal(t, ReasonPositionOpen, signals[1].Reason)

	var positions int64
	require.NoError(t, db.Model(&models.Position{}).Count(&positions).Error)
	assert.EqualValues(t, 1, positions)
}

func TestEngine_ProfitTargetClosesPosition(t *testing.T) {
	// Arrange: PUT sold at 5.0 (credit 500); the mark drops to 2.4 so
	// unrealized = 500 - 240 = 260 >= 250 target
	engine, gateway, source, _ := setupEngine(t)
	gateway.On("GetOptionChain", "XYZ").Return(testChain(), nil)
	gateway.On("SubmitOrder", broker.ActionSellToOpen, "XYZP100", 1).
		Return(&broker.OrderResponse{OrderID: "o-1", Status: broker.OrderStatusFilled, FillPrice: 5.0}, nil).Once()
	gateway.On("GetQuote", "XYZP100").Return(&broker.Quote{Bid: 5.0, Ask: 5.0}, nil).Once()
	cycleWith(t, engine, source, crossTick(0, 100.5, 100.0), StateActive)
	cycleWith(t, engine, source, crossTick(1, 99.8, 100.0), StateActive)
	require.NotNil(t, engine.ledger.Open())

	gateway.On("GetQuote", "XYZP100").Return(&broker.Quote{Bid: 2.4, Ask: 2.4}, nil)
	gateway.On("SubmitOrder", broker.ActionBuyToClose, "XYZP100", 1).
		Return(&broker.OrderResponse{OrderID: "o-2", Status: broker.OrderStatusFilled, FillPrice: 2.4}, nil)

	// Act
	require.NoError(t, engine.Cycle(context.Background(), activeTime.Add(2*time.Minute), StateActive))

	// Assert
	gateway.AssertExpectations(t)
	assert.Nil(t, engine.ledger.Open())
}

func TestEngine_CloseRetriesNextCycle(t *testing.T) {
	// Arrange: position open inside the close buffer; the first close
	// attempt fails, the second succeeds
	engine, gateway, source, _ := setupEngine(t)
	openPutAt(t, engine, gateway, source)

	gateway.On("SubmitOrder", broker.ActionBuyToClose, "XYZP100", 1).
		Return(nil, broker.ErrRejectedByBroker).Once()
	gateway.On("SubmitOrder", broker.ActionBuyToClose, "XYZP100", 1).
		Return(&broker.OrderResponse{OrderID: "o-2", Status: broker.OrderStatusFilled, FillPrice: 5.0}, nil).Once()

	// Act: forced-close window, two cycles
	require.NoError(t, engine.Cycle(context.Background(), bufferTime, StateCloseOnly))
	stillOpen := engine.ledger.Open()
	require.NoError(t, engine.Cycle(context.Background(), bufferTime.Add(time.Minute), StateCloseOnly))

	// Assert
	assert.NotNil(t, stillOpen)
	assert.Nil(t, engine.ledger.Open())
	gateway.AssertExpectations(t)
}

func TestEngine_TimeoutBlocksUntilReconciled(t *testing.T) {
	// Arrange: a 2-contract opening order times out; the next cycle
	// reconciles against broker positions and finds the short actually on
	engine, gateway, source, db := setupEngine(t)
	engine.cfg.Trading.ContractCount = 2
	gateway.On("GetOptionChain", "XYZ").Return(testChain(), nil)
	gateway.On("SubmitOrder", broker.ActionSellToOpen, "XYZP100", 2).
		Return(nil, broker.ErrOrderTimeout).Once()

	cycleWith(t, engine, source, crossTick(0, 100.5, 100.0), StateActive)
	cycleWith(t, engine, source, crossTick(1, 99.8, 100.0), StateActive)
	require.NotNil(t, engine.pending)
	assert.Nil(t, engine.ledger.Open())

	gateway.On("GetPositions").
		Return([]broker.BrokerPosition{{OptionSymbol: "XYZP100", Quantity: -2, AvgPrice: 5.0}}, nil)
	gateway.On("GetQuote", "XYZP100").Return(&broker.Quote{Bid: 5.0, Ask: 5.0}, nil)

	// Act
	require.NoError(t, engine.Cycle(context.Background(), activeTime.Add(2*time.Minute), StateActive))

	// Assert: fill booked from broker state at the per-contract premium,
	// entries unblocked
	assert.Nil(t, engine.pending)
	pos := engine.ledger.Open()
	require.NotNil(t, pos)
	assert.Equal(t, "XYZP100", pos.OptionSymbol)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromFloat(5.0)), pos.EntryPrice.String())
	// entryCredit = 5.0 x 2 contracts x 100 multiplier
	assert.True(t, pos.EntryCredit.Equal(decimal.NewFromInt(1000)), pos.EntryCredit.String())

	var trades []models.Trade
	require.NoError(t, db.Find(&trades).Error)
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeActionSellToOpen, trades[0].Action)
}

func TestEngine_TimeoutReconciledAsNeverExecuted(t *testing.T) {
	// Arrange
	engine, gateway, source, _ := setupEngine(t)
	gateway.On("GetOptionChain", "XYZ").Return(testChain(), nil)
	gateway.On("SubmitOrder", broker.ActionSellToOpen, "XYZP100", 1).
		Return(nil, broker.ErrOrderTimeout).Once()
	cycleWith(t, engine, source, crossTick(0, 100.5, 100.0), StateActive)
	cycleWith(t, engine, source, crossTick(1, 99.8, 100.0), StateActive)
	require.NotNil(t, engine.pending)

	gateway.On("GetPositions").Return([]broker.BrokerPosition{}, nil)

	// Act
	require.NoError(t, engine.Cycle(context.Background(), activeTime.Add(2*time.Minute), StateActive))

	// Assert
	assert.Nil(t, engine.pending)
	assert.Nil(t, engine.ledger.Open())
}

func TestEngine_ChainUnavailableRecordsSuppressedSignal(t *testing.T) {
	// Arrange
	engine, gateway, source, db := setupEngine(t)
	gateway.On("GetOptionChain", "XYZ").Return(nil, assert.AnError)

	// Act
	cycleWith(t, engine, source, crossTick(0, 100.5, 100.0), StateActive)
	cycleWith(t, engine, source, crossTick(1, 99.8, 100.0), StateActive)

	// Assert: loop continues, signal suppressed
	assert.Nil(t, engine.ledger.Open())
	var signals []models.Signal
	require.NoError(t, db.Find(&signals).Error)
	require.Len(t, signals, 1)
	assert.False(t, signals[0].ActionTaken)
	assert.Equal(t, ReasonChainUnavailable, signals[0].Reason)
}

func TestEngine_OppositeCrossClosesThenOpens(t *testing.T) {
	// Arrange: open PUT from a down-cross, then an up-cross routes the
	// close before opening the CALL
	engine, gateway, source, db := setupEngine(t)
	openPutAt(t, engine, gateway, source)

	gateway.On("SubmitOrder", broker.ActionBuyToClose, "XYZP100", 1).
		Return(&broker.OrderResponse{OrderID: "o-2", Status: broker.OrderStatusFilled, FillPrice: 4.0}, nil).Once()
	gateway.On("SubmitOrder", broker.ActionSellToOpen, "XYZC100", 1).
		Return(&broker.OrderResponse{OrderID: "o-3", Status: broker.OrderStatusFilled, FillPrice: 4.8}, nil).Once()
	gateway.On("GetQuote", "XYZC100").Return(&broker.Quote{Bid: 4.8, Ask: 4.8}, nil)

	// Act
	cycleWith(t, engine, source, crossTick(2, 100.4, 100.0), StateActive) // up-cross

	// Assert
	gateway.AssertExpectations(t)
	pos := engine.ledger.Open()
	require.NotNil(t, pos)
	assert.Equal(t, models.OptionTypeCall, pos.OptionType)

	var positions int64
	require.NoError(t, db.Model(&models.Position{}).Count(&positions).Error)
	assert.EqualValues(t, 2, positions)
}
