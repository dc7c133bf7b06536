package supervisor

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/envelope"
	"github.com/YAMLcase/Heron/forwarder"
	"github.com/YAMLcase/Heron/params"
	"github.com/YAMLcase/Heron/topic"
	"github.com/YAMLcase/Heron/transport"
	"github.com/YAMLcase/Heron/worker"
)

const zmqWithin = 10 * time.Second

func portFree(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", host+":0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// freePorts finds a base port P with P, P+1 and P+2 all unbound.
func freePorts(t *testing.T) topic.PortSet {
	t.Helper()
	for range 50 {
		p := freePort(t)
		if p+2 > 65535 || !portFree(p+1) || !portFree(p+2) {
			continue
		}
		ports, err := topic.Ports(p)
		require.NoError(t, err)
		return ports
	}
	t.Fatal("no free port triple")
	return topic.PortSet{}
}

type zmqGraph struct {
	fabric *transport.ZMQ
	cfg    Config
	// forwarder endpoints
	dataSubmit, paramsSubmit, livenessSubmit string
}

// startZMQForwarders runs the three forwarders on loopback TCP and returns a supervisor config
// wired to them.
func startZMQForwarders(t *testing.T, fabric *transport.ZMQ) zmqGraph {
	t.Helper()
	ep := func() string { return transport.TCP(host, freePort(t)) }
	g := zmqGraph{fabric: fabric, dataSubmit: ep(), paramsSubmit: ep(), livenessSubmit: ep()}
	dataPub, paramsPub, livenessPub := ep(), ep(), ep()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, f := range []*forwarder.Forwarder{
		forwarder.New(forwarder.Data, fabric, g.dataSubmit, dataPub),
		forwarder.New(forwarder.Parameters, fabric, g.paramsSubmit, paramsPub),
		forwarder.New(forwarder.Liveness, fabric, g.livenessSubmit, livenessPub),
	} {
		go func() { _ = f.Run(ctx) }()
		select {
		case <-f.Ready():
		case <-time.After(zmqWithin):
			t.Fatalf("%s forwarder not ready", f.Kind())
		}
	}

	g.cfg = Config{
		StateTopic:         stageTopic,
		Host:               host,
		Ports:              freePorts(t),
		ReceivingTopics:    []string{inputA, inputB},
		SendingTopics:      []string{outTopic},
		DataInEndpoint:     dataPub,
		DataOutEndpoint:    g.dataSubmit,
		ParametersEndpoint: paramsPub,
		HeartbeatRate:      100 * time.Millisecond,
		Worker:             Command{Path: "heron", Args: []string{"worker"}},
	}
	return g
}

func drain(s transport.Socket) <-chan [][]byte {
	ch := make(chan [][]byte, 16)
	go func() {
		defer close(ch)
		for {
			f, err := s.Recv()
			if err != nil {
				return
			}
			ch <- f
		}
	}()
	return ch
}

// A supervisor on the ZeroMQ fabric spawns its worker before dialing the worker's ports, so the
// stage comes up even though nothing listens on P and P+2 until the worker runs.
func TestSupervisor_ZMQ_RelaysThroughWorker(t *testing.T) {
	fabric := transport.NewZMQ(transport.WithDialTimeout(zmqWithin))
	g := startZMQForwarders(t, fabric)

	schema, err := params.NewSchema("Differencing",
		[]string{"Visualisation", "frame2_minus_frame1"}, []string{"bool", "bool"}, []any{false, false})
	require.NoError(t, err)

	launcher := LauncherFunc(func(ctx context.Context, _ Command) (Process, error) {
		p := newFakeProcess()
		go func() {
			w, err := worker.New(worker.Config{
				ParametersTopic:    stageTopic,
				Host:               host,
				Ports:              g.cfg.Ports,
				Inputs:             g.cfg.ReceivingTopics,
				Schema:             schema,
				ParametersEndpoint: g.cfg.ParametersEndpoint,
				LivenessEndpoint:   g.livenessSubmit,
				HeartbeatRate:      g.cfg.HeartbeatRate,
				HeartbeatsToDeath:  20,
			}, fabric, subtract, worker.WithTerminator(func(int) {}))
			if err != nil {
				p.exit(err)
				return
			}
			p.exit(w.Run(ctx))
		}()
		return p, nil
	})

	s, err := New(g.cfg, fabric, launcher)
	require.NoError(t, err)

	ctx := context.Background()
	downstream, err := fabric.Dial(ctx, transport.Sub, g.cfg.DataInEndpoint, transport.Subscribe(outTopic))
	require.NoError(t, err)
	defer downstream.Close()
	upstream, err := fabric.Dial(ctx, transport.Pub, g.dataSubmit)
	require.NoError(t, err)
	defer upstream.Close()
	out := drain(downstream)

	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- s.Run(runCtx) }()
	select {
	case <-s.Ready():
	case err := <-errc:
		cancel()
		t.Fatalf("supervisor exited early: %v", err)
	case <-time.After(zmqWithin):
		cancel()
		t.Fatal("supervisor not ready")
	}

	deadline := time.After(zmqWithin)
	for done := false; !done; {
		require.NoError(t, upstream.Send(frames(t, inputA, 3)))
		require.NoError(t, upstream.Send(frames(t, inputB, 1)))
		select {
		case got := <-out:
			msg, err := envelope.Parse(got)
			require.NoError(t, err)
			arr, tp, err := envelope.Decode(msg)
			require.NoError(t, err)
			assert.Equal(t, outTopic, tp)
			assert.Equal(t, 2.0, arr.Float64s()[0])
			done = true
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no output over the ZeroMQ fabric")
		}
	}
	assert.Positive(t, s.Stats().Pulses)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(zmqWithin):
		t.Fatal("supervisor did not stop")
	}
}

func TestSupervisor_ZMQ_ConnectFailureKillsWorker(t *testing.T) {
	fabric := transport.NewZMQ(transport.WithDialTimeout(500 * time.Millisecond))
	g := startZMQForwarders(t, fabric)

	// the process never binds its ports
	proc := newFakeProcess()
	s, err := New(g.cfg, fabric, LauncherFunc(func(context.Context, Command) (Process, error) {
		return proc, nil
	}))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect worker push")
	case <-time.After(zmqWithin):
		t.Fatal("supervisor did not give up on an unreachable worker")
	}
	assert.True(t, proc.killed.Load(), "worker is killed when its channels cannot be connected")
	assert.False(t, s.WorkerAlive())

	sock, err := fabric.Listen(context.Background(), transport.Pull, transport.TCP(host, g.cfg.Ports.Push))
	require.NoError(t, err, "worker pull port must be released")
	_ = sock.Close()
}
