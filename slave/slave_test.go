package slave

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-fmu/config"
	"github.com/wippyai/wasm-fmu/conformance"
	"github.com/wippyai/wasm-fmu/engine"
	"github.com/wippyai/wasm-fmu/errors"
	"github.com/wippyai/wasm-fmu/fmi2"
	"github.com/wippyai/wasm-fmu/internal/modeltest"
	"github.com/wippyai/wasm-fmu/logbridge"
)

type recorder struct {
	mu      sync.Mutex
	records []logbridge.Record
}

func (r *recorder) callback(_ string, status fmi2.Status, category, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, logbridge.Record{Status: status, Category: category, Message: message})
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Message
	}
	return out
}

func newFactory(t *testing.T) *Factory {
	t.Helper()
	m := engine.NewManager(engine.Config{Teardown: engine.TeardownAlways})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return NewFactory(m)
}

func create(t *testing.T, f *Factory, cfg config.Configuration, name string, loggingOn bool) (*Adapter, *recorder) {
	t.Helper()
	rec := &recorder{}
	a, err := f.Create(context.Background(), cfg, Options{
		InstanceName: name,
		GUID:         "{8c4e810f-3df3-4a00-8276-176fa3c9f000}",
		LoggingOn:    loggingOn,
		Callback:     rec.callback,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Free(context.Background()) })
	return a, rec
}

func createClass(t *testing.T, f *Factory, class string) (*Adapter, *recorder) {
	t.Helper()
	cfg := modeltest.Configuration(t, modeltest.Dir(t, class))
	return create(t, f, cfg, class+"1", true)
}

func toStepMode(t *testing.T, a *Adapter) {
	t.Helper()
	ctx := context.Background()
	status, err := a.EnterInitializationMode(ctx)
	require.NoError(t, err)
	require.Equal(t, fmi2.OK, status)
	status, err = a.ExitInitializationMode(ctx)
	require.NoError(t, err)
	require.Equal(t, fmi2.OK, status)
}

func TestAdderScenario(t *testing.T) {
	ctx := context.Background()
	a, _ := createClass(t, newFactory(t), modeltest.Adder)

	assert.Equal(t, conformance.Instantiated, a.State())
	assert.Equal(t, "Adder1", a.InstanceName())
	assert.NotEqual(t, [16]byte{}, [16]byte(a.ID()))

	status, err := a.SetupExperiment(ctx, false, 0, 0, true, 10)
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)

	toStepMode(t, a)
	assert.Equal(t, conformance.StepMode, a.State())

	status, err = a.SetReal(ctx, []uint32{modeltest.RefInput0, modeltest.RefInput1}, []float64{5, 10})
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)

	status, err = a.DoStep(ctx, 0, 1, false)
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)

	out, status, err := a.GetReal(ctx, []uint32{modeltest.RefOutput})
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)
	assert.Equal(t, []float64{15}, out)

	last, status, err := a.GetRealStatus(ctx, fmi2.LastSuccessfulTime)
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)
	assert.Equal(t, 1.0, last)

	terminated, status, err := a.GetBooleanStatus(ctx, fmi2.Terminated)
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)
	assert.False(t, terminated)

	status, err = a.Terminate(ctx)
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)
	assert.Equal(t, conformance.Terminated, a.State())

	status, err = a.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)
	assert.Equal(t, conformance.Instantiated, a.State())

	// reset clears the model's variables
	toStepMode(t, a)
	out, _, err = a.GetReal(ctx, []uint32{modeltest.RefOutput})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, out)
}

func TestSetThenGet(t *testing.T) {
	ctx := context.Background()
	a, _ := createClass(t, newFactory(t), modeltest.Adder)
	toStepMode(t, a)

	_, err := a.SetInteger(ctx, []uint32{0, 1}, []int32{-3, 7})
	require.NoError(t, err)
	ints, _, err := a.GetInteger(ctx, []uint32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []int32{-3, 7}, ints)

	_, err = a.SetBoolean(ctx, []uint32{2}, []bool{true})
	require.NoError(t, err)
	bools, _, err := a.GetBoolean(ctx, []uint32{2})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, bools)

	_, err = a.SetString(ctx, []uint32{0}, []string{"{x} 100%"})
	require.NoError(t, err)
	strs, _, err := a.GetString(ctx, []uint32{0})
	require.NoError(t, err)
	assert.Equal(t, []string{"{x} 100%"}, strs)
}

func TestDoStepBeforeInitialization(t *testing.T) {
	a, rec := createClass(t, newFactory(t), modeltest.Adder)

	status, err := a.DoStep(context.Background(), 0, 1, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocolViolation)
	assert.Equal(t, fmi2.Error, status)
	assert.Equal(t, conformance.Instantiated, a.State(), "a rejected call does not change state")

	require.NotEmpty(t, rec.records)
	last := rec.records[len(rec.records)-1]
	assert.Equal(t, fmi2.Error, last.Status)
	assert.Contains(t, last.Message, "DoStep is not allowed in state Instantiated")
}

type countingModel struct {
	Model
	calls int
}

func (c *countingModel) Call(ctx context.Context, method string, args ...uint64) (fmi2.Status, error) {
	c.calls++
	return c.Model.Call(ctx, method, args...)
}

func (c *countingModel) SetDebugLogging(ctx context.Context, on bool, categories []string) (fmi2.Status, error) {
	c.calls++
	return c.Model.SetDebugLogging(ctx, on, categories)
}

func (c *countingModel) GetReal(ctx context.Context, refs []fmi2.ValueReference) ([]float64, fmi2.Status, error) {
	c.calls++
	return c.Model.GetReal(ctx, refs)
}

func (c *countingModel) GetInteger(ctx context.Context, refs []fmi2.ValueReference) ([]int32, fmi2.Status, error) {
	c.calls++
	return c.Model.GetInteger(ctx, refs)
}

func (c *countingModel) GetBoolean(ctx context.Context, refs []fmi2.ValueReference) ([]bool, fmi2.Status, error) {
	c.calls++
	return c.Model.GetBoolean(ctx, refs)
}

func (c *countingModel) GetString(ctx context.Context, refs []fmi2.ValueReference) ([]string, fmi2.Status, error) {
	c.calls++
	return c.Model.GetString(ctx, refs)
}

func (c *countingModel) SetReal(ctx context.Context, refs []fmi2.ValueReference, values []float64) (fmi2.Status, error) {
	c.calls++
	return c.Model.SetReal(ctx, refs, values)
}

func (c *countingModel) SetInteger(ctx context.Context, refs []fmi2.ValueReference, values []int32) (fmi2.Status, error) {
	c.calls++
	return c.Model.SetInteger(ctx, refs, values)
}

func (c *countingModel) SetBoolean(ctx context.Context, refs []fmi2.ValueReference, values []bool) (fmi2.Status, error) {
	c.calls++
	return c.Model.SetBoolean(ctx, refs, values)
}

func (c *countingModel) SetString(ctx context.Context, refs []fmi2.ValueReference, values []string) (fmi2.Status, error) {
	c.calls++
	return c.Model.SetString(ctx, refs, values)
}

// driveTo moves a fresh Adder component into state.
func driveTo(t *testing.T, a *Adapter, state conformance.State) {
	t.Helper()
	ctx := context.Background()
	switch state {
	case conformance.Instantiated:
	case conformance.InitializationMode:
		_, err := a.EnterInitializationMode(ctx)
		require.NoError(t, err)
	case conformance.StepMode:
		toStepMode(t, a)
	case conformance.Terminated:
		toStepMode(t, a)
		_, err := a.Terminate(ctx)
		require.NoError(t, err)
	case conformance.Error:
		toStepMode(t, a)
		// the model reports Error for an unknown value reference
		_, status, err := a.GetReal(ctx, []uint32{99})
		require.NoError(t, err)
		require.Equal(t, fmi2.Error, status)
	case conformance.Fatal:
		toStepMode(t, a)
		status, _ := a.SetReal(ctx, []uint32{0, 1}, []float64{1})
		require.Equal(t, fmi2.Fatal, status)
	}
	require.Equal(t, state, a.State())
}

func TestIllegalCallsNeverReachModel(t *testing.T) {
	ctx := context.Background()
	invoke := map[conformance.Op]func(a *Adapter) (fmi2.Status, error){
		conformance.SetupExperiment: func(a *Adapter) (fmi2.Status, error) {
			return a.SetupExperiment(ctx, false, 0, 0, false, 0)
		},
		conformance.EnterInitializationMode: func(a *Adapter) (fmi2.Status, error) {
			return a.EnterInitializationMode(ctx)
		},
		conformance.ExitInitializationMode: func(a *Adapter) (fmi2.Status, error) {
			return a.ExitInitializationMode(ctx)
		},
		conformance.DoStep: func(a *Adapter) (fmi2.Status, error) {
			return a.DoStep(ctx, 0, 1, false)
		},
		conformance.Terminate: func(a *Adapter) (fmi2.Status, error) {
			return a.Terminate(ctx)
		},
		conformance.Reset: func(a *Adapter) (fmi2.Status, error) {
			return a.Reset(ctx)
		},
		conformance.GetVariables: func(a *Adapter) (fmi2.Status, error) {
			_, status, err := a.GetString(ctx, []uint32{0})
			return status, err
		},
		conformance.SetVariables: func(a *Adapter) (fmi2.Status, error) {
			return a.SetBoolean(ctx, []uint32{0}, []bool{true})
		},
		conformance.SetDebugLogging: func(a *Adapter) (fmi2.Status, error) {
			return a.SetDebugLogging(ctx, true, nil)
		},
		conformance.CancelStep: func(a *Adapter) (fmi2.Status, error) {
			return a.CancelStep(ctx)
		},
		conformance.GetStatus: func(a *Adapter) (fmi2.Status, error) {
			_, status, err := a.GetRealStatus(ctx, fmi2.LastSuccessfulTime)
			return status, err
		},
	}

	f := newFactory(t)
	cfg := modeltest.Configuration(t, modeltest.Dir(t, modeltest.Adder))

	for _, state := range conformance.States() {
		for _, op := range conformance.Ops() {
			call, ok := invoke[op]
			if !ok {
				continue
			}
			t.Run(state.String()+"/"+op.String(), func(t *testing.T) {
				adapter, _ := create(t, f, cfg, "c", false)
				driveTo(t, adapter, state)
				if adapter.machine.Allowed(op) {
					t.Skip("legal")
				}

				counter := &countingModel{Model: adapter.model}
				adapter.model = counter

				status, err := call(adapter)
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrProtocolViolation)
				assert.Equal(t, fmi2.Error, status)
				assert.Zero(t, counter.calls, "model was called")
				assert.Equal(t, state, adapter.State())
			})
		}
	}
}

func TestBufferedLogsFlushedInOrder(t *testing.T) {
	ctx := context.Background()
	a, rec := createClass(t, newFactory(t), modeltest.Chatty)
	toStepMode(t, a)
	rec.reset()

	status, err := a.DoStep(ctx, 0, 1, false)
	require.NoError(t, err, "a model reporting Error is not a call failure")
	assert.Equal(t, fmi2.Error, status)
	assert.Equal(t, conformance.Error, a.State())
	assert.Equal(t, []string{"first {message}", "second 100% {done}", "third } {"}, rec.messages())
	assert.Equal(t, fmi2.Warning, rec.records[1].Status)

	_, err = a.Reset(ctx)
	require.NoError(t, err)
	toStepMode(t, a)
	rec.reset()

	// terminate buffers a record and traps
	status, err = a.Terminate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCallFailed)
	assert.Equal(t, fmi2.Error, status)
	assert.Equal(t, conformance.Error, a.State())

	msgs := rec.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "terminating {now}", msgs[0])
	assert.Contains(t, msgs[1], "Terminate failed")
}

func TestHostLogImport(t *testing.T) {
	a, rec := createClass(t, newFactory(t), modeltest.Adder)

	_, err := a.EnterInitializationMode(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.records, 1)
	assert.Equal(t, logbridge.Record{
		Status:   fmi2.OK,
		Category: "logEvents",
		Message:  "entering initialization mode {init}",
	}, rec.records[0])
}

func TestDebugLoggingFilter(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	cfg := modeltest.Configuration(t, modeltest.Dir(t, modeltest.Chatty))
	a, rec := create(t, f, cfg, "quiet", false)
	toStepMode(t, a)

	_, _ = a.DoStep(ctx, 0, 1, false)
	assert.Equal(t, []string{"third } {"}, rec.messages(), "with logging off only errors pass")

	_, _ = a.Reset(ctx)
	status, err := a.SetDebugLogging(ctx, true, []string{logbridge.LogStatusWarning})
	require.NoError(t, err)
	assert.Equal(t, fmi2.OK, status)
	toStepMode(t, a)
	rec.reset()

	_, _ = a.DoStep(ctx, 0, 1, false)
	assert.Equal(t, []string{"second 100% {done}", "third } {"}, rec.messages())
}

func TestUnsupportedStatusQueries(t *testing.T) {
	ctx := context.Background()
	a, _ := createClass(t, newFactory(t), modeltest.Adder)
	toStepMode(t, a)

	status, err := a.CancelStep(ctx)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.Equal(t, fmi2.Error, status)
	assert.Equal(t, conformance.StepMode, a.State())

	_, status, err = a.GetStatus(ctx, fmi2.DoStepStatus)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.Equal(t, fmi2.Discard, status)

	_, status, _ = a.GetIntegerStatus(ctx, fmi2.DoStepStatus)
	assert.Equal(t, fmi2.Discard, status)
	_, status, _ = a.GetStringStatus(ctx, fmi2.PendingStatus)
	assert.Equal(t, fmi2.Discard, status)
	_, status, _ = a.GetRealStatus(ctx, fmi2.DoStepStatus)
	assert.Equal(t, fmi2.Discard, status)
	_, status, _ = a.GetBooleanStatus(ctx, fmi2.PendingStatus)
	assert.Equal(t, fmi2.Discard, status)
	assert.Equal(t, conformance.StepMode, a.State())
}

func TestFaultyModel(t *testing.T) {
	ctx := context.Background()
	a, rec := createClass(t, newFactory(t), modeltest.Faulty)

	status, err := a.SetupExperiment(ctx, false, 0, 0, false, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConversion)
	assert.Equal(t, fmi2.Fatal, status)
	assert.Equal(t, conformance.Fatal, a.State())

	last := rec.records[len(rec.records)-1]
	assert.Equal(t, fmi2.Fatal, last.Status)
	assert.Contains(t, last.Message, "not a valid fmi2Status")

	_, err = a.EnterInitializationMode(ctx)
	assert.ErrorIs(t, err, errors.ErrProtocolViolation)
	require.NoError(t, a.Free(ctx))
}

func TestFaultyValues(t *testing.T) {
	ctx := context.Background()
	a, _ := createClass(t, newFactory(t), modeltest.Faulty)
	toStepMode(t, a)

	out, status, err := a.GetBoolean(ctx, []uint32{0, 1})
	assert.ErrorIs(t, err, errors.ErrConversion)
	assert.Equal(t, fmi2.Fatal, status)
	assert.Nil(t, out)
	assert.Equal(t, conformance.Fatal, a.State())
}

func TestTwoComponentsAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	cfg := modeltest.Configuration(t, modeltest.Dir(t, modeltest.Adder))
	first, _ := create(t, f, cfg, "first", false)
	second, _ := create(t, f, cfg, "second", false)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 2, f.Manager.Users())

	toStepMode(t, first)
	toStepMode(t, second)

	_, err := first.SetReal(ctx, []uint32{0, 1}, []float64{1, 2})
	require.NoError(t, err)
	_, err = second.SetReal(ctx, []uint32{0, 1}, []float64{10, 20})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, c := range []*Adapter{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				_, _ = c.DoStep(ctx, float64(i), 1, false)
			}
		}()
	}
	wg.Wait()

	out, _, err := first.GetReal(ctx, []uint32{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, out)
	out, _, err = second.GetReal(ctx, []uint32{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{30}, out)

	_, err = first.Terminate(ctx)
	require.NoError(t, err)
	assert.Equal(t, conformance.Terminated, first.State())
	assert.Equal(t, conformance.StepMode, second.State())
}

func TestScriptInSubdirectory(t *testing.T) {
	dir := modeltest.Dir(t, modeltest.Adder, modeltest.Script("models/models.wasm"))
	cfg := modeltest.Configuration(t, dir)
	assert.Equal(t, "models", cfg.EntryModule)

	a, _ := create(t, newFactory(t), cfg, "nested", false)
	toStepMode(t, a)
}

func TestCreateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Configuration)
		step   string
	}{
		{"unknown class", func(c *config.Configuration) { c.EntryClass = "Multiplier" }, StepConstruct},
		{"unknown module", func(c *config.Configuration) {
			c.EntryModule = "absent"
			c.ScriptPath = ""
		}, StepImportModule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFactory(t)
			cfg := modeltest.Configuration(t, modeltest.Dir(t, modeltest.Adder))
			tt.mutate(&cfg)

			rec := &recorder{}
			a, err := f.Create(context.Background(), cfg, Options{InstanceName: "broken", Callback: rec.callback})
			require.Error(t, err)
			assert.Nil(t, a)
			assert.ErrorIs(t, err, errors.ErrInstantiationFailed)
			assert.Contains(t, err.Error(), tt.step)
			assert.Equal(t, 0, f.Manager.Users(), "a failed create releases the runtime")

			require.Len(t, rec.records, 1)
			assert.Equal(t, fmi2.Fatal, rec.records[0].Status)
			assert.Contains(t, rec.records[0].Message, tt.step)
		})
	}
}

func TestCreatePanicRollsBack(t *testing.T) {
	f := newFactory(t)
	cfg := modeltest.Configuration(t, modeltest.Dir(t, modeltest.Adder))

	// the second step log panics, after the runtime is retained and locked
	steps := 0
	core, _ := observer.New(zap.DebugLevel)
	logger := zap.New(core, zap.Hooks(func(e zapcore.Entry) error {
		if e.Message == "instantiation step" {
			steps++
			if steps == 2 {
				panic("step hook failed")
			}
		}
		return nil
	}))

	rec := &recorder{}
	var (
		a   *Adapter
		err error
	)
	require.NotPanics(t, func() {
		a, err = f.Create(context.Background(), cfg, Options{
			InstanceName: "panicky",
			Callback:     rec.callback,
			Logger:       logger,
		})
	})
	require.Error(t, err)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, errors.ErrInstantiationFailed)
	assert.Contains(t, err.Error(), StepSearchPath)
	assert.Equal(t, 0, f.Manager.Users(), "a panicking create releases the runtime")
	assert.False(t, f.Manager.Active())

	require.Len(t, rec.records, 1)
	assert.Equal(t, fmi2.Fatal, rec.records[0].Status)
	assert.Contains(t, rec.records[0].Message, StepSearchPath)
	assert.Contains(t, rec.records[0].Message, "step hook failed")

	// the lock was released: a later create succeeds
	ok, _ := create(t, f, cfg, "after", false)
	assert.Equal(t, conformance.Instantiated, ok.State())
}

func TestFree(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	a, _ := createClass(t, f, modeltest.Adder)
	toStepMode(t, a)

	require.NoError(t, a.Free(ctx))
	require.NoError(t, a.Free(ctx))
	assert.Equal(t, 0, f.Manager.Users())

	status, err := a.DoStep(ctx, 0, 1, false)
	assert.ErrorIs(t, err, errors.ErrProtocolViolation)
	assert.Equal(t, fmi2.Error, status)
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	a, _ := createClass(t, newFactory(t), modeltest.Adder)
	toStepMode(t, a)

	a.Abort("host callback panicked")
	assert.Equal(t, conformance.Fatal, a.State())

	status, err := a.DoStep(ctx, 0, 1, false)
	assert.ErrorIs(t, err, errors.ErrProtocolViolation)
	assert.Equal(t, fmi2.Error, status)
	require.NoError(t, a.Free(ctx))
}

func TestDropFrees(t *testing.T) {
	f := newFactory(t)
	cfg := modeltest.Configuration(t, modeltest.Dir(t, modeltest.Adder))
	a, err := f.Create(context.Background(), cfg, Options{InstanceName: "dropped"})
	require.NoError(t, err)
	require.Equal(t, 1, f.Manager.Users())

	a.Drop()
	assert.Equal(t, 0, f.Manager.Users())
	a.Drop()
	assert.Equal(t, 0, f.Manager.Users())
}
