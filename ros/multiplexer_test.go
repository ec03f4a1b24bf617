package ros_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/brokenrobotz/viam-ros-bridge/ros"
	"github.com/brokenrobotz/viam-ros-bridge/ros/rostest"
)

func testConf() ros.NodeConf {
	return ros.NodeConf{Owner: "test", MasterAddress: "localhost:11311"}
}

func TestAcquireConcurrentSingleInit(t *testing.T) {
	graph := rostest.NewGraph()
	graph.SlowOpen(20 * time.Millisecond)
	mux := ros.NewMultiplexer(graph, logging.NewTestLogger(t))

	const n = 16
	handles := make([]*ros.NodeHandle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = mux.Acquire(context.Background(), testConf())
		}(i)
	}
	wg.Wait()

	test.That(t, graph.Opens(), test.ShouldEqual, 1)
	for i := 0; i < n; i++ {
		test.That(t, errs[i], test.ShouldBeNil)
		test.That(t, handles[i], test.ShouldEqual, handles[0])
	}
	test.That(t, mux.Refs(handles[0].ID), test.ShouldEqual, n)
}

func TestAcquireDistinctNamespaces(t *testing.T) {
	graph := rostest.NewGraph()
	mux := ros.NewMultiplexer(graph, logging.NewTestLogger(t))

	a, err := mux.Acquire(context.Background(), testConf())
	test.That(t, err, test.ShouldBeNil)
	conf := testConf()
	conf.Namespace = "/"
	same, err := mux.Acquire(context.Background(), conf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldEqual, a)

	conf.Namespace = "/robot2"
	b, err := mux.Acquire(context.Background(), conf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.ID, test.ShouldNotEqual, a.ID)
	test.That(t, b.Namespace, test.ShouldEqual, "/robot2")
	test.That(t, graph.Opens(), test.ShouldEqual, 2)
}

func TestAcquireFailureCached(t *testing.T) {
	graph := rostest.NewGraph()
	graph.FailOpen(errors.New("master unreachable"))
	mux := ros.NewMultiplexer(graph, logging.NewTestLogger(t))

	_, err := mux.Acquire(context.Background(), testConf())
	test.That(t, errors.Is(err, ros.ErrInitializationFailed), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "master unreachable")

	graph.FailOpen(nil)
	_, err = mux.Acquire(context.Background(), testConf())
	test.That(t, errors.Is(err, ros.ErrInitializationFailed), test.ShouldBeTrue)
	test.That(t, graph.Opens(), test.ShouldEqual, 1)

	test.That(t, mux.Reset(testConf()), test.ShouldBeTrue)
	h, err := mux.Acquire(context.Background(), testConf())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h, test.ShouldNotBeNil)
	test.That(t, graph.Opens(), test.ShouldEqual, 2)
	test.That(t, mux.Reset(testConf()), test.ShouldBeFalse)
}

func TestReleaseKeepsNodeOpen(t *testing.T) {
	graph := rostest.NewGraph()
	mux := ros.NewMultiplexer(graph, logging.NewTestLogger(t))

	h, err := mux.Acquire(context.Background(), testConf())
	test.That(t, err, test.ShouldBeNil)
	_, err = mux.Acquire(context.Background(), testConf())
	test.That(t, err, test.ShouldBeNil)

	mux.Release(h.ID)
	test.That(t, mux.Teardown(h.ID), test.ShouldBeFalse)
	mux.Release(h.ID)
	mux.Release(h.ID)
	test.That(t, mux.Refs(h.ID), test.ShouldEqual, 0)
	test.That(t, graph.Closes(), test.ShouldEqual, 0)

	test.That(t, mux.Teardown(h.ID), test.ShouldBeTrue)
	test.That(t, graph.Closes(), test.ShouldEqual, 1)
	test.That(t, mux.Refs(h.ID), test.ShouldEqual, -1)
	test.That(t, mux.Teardown(h.ID), test.ShouldBeFalse)
}

func TestShutdownClosesEverything(t *testing.T) {
	graph := rostest.NewGraph()
	mux := ros.NewMultiplexer(graph, logging.NewTestLogger(t))

	_, err := mux.Acquire(context.Background(), testConf())
	test.That(t, err, test.ShouldBeNil)
	conf := testConf()
	conf.Owner = "other"
	_, err = mux.Acquire(context.Background(), conf)
	test.That(t, err, test.ShouldBeNil)

	mux.Shutdown()
	mux.Shutdown()
	test.That(t, graph.Closes(), test.ShouldEqual, 2)

	_, err = mux.Acquire(context.Background(), testConf())
	test.That(t, errors.Is(err, ros.ErrClosed), test.ShouldBeTrue)
}

func TestAcquireContextCanceledWhileWaiting(t *testing.T) {
	graph := rostest.NewGraph()
	graph.SlowOpen(200 * time.Millisecond)
	mux := ros.NewMultiplexer(graph, logging.NewTestLogger(t))

	first := make(chan error, 1)
	go func() {
		_, err := mux.Acquire(context.Background(), testConf())
		first <- err
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := mux.Acquire(ctx, testConf())
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)

	// the slow initialization still completes for the first caller
	test.That(t, <-first, test.ShouldBeNil)
	test.That(t, graph.Opens(), test.ShouldEqual, 1)
	mux.Shutdown()
}

func TestResolveName(t *testing.T) {
	test.That(t, ros.ResolveName("/", "chatter"), test.ShouldEqual, "/chatter")
	test.That(t, ros.ResolveName("", "chatter"), test.ShouldEqual, "/chatter")
	test.That(t, ros.ResolveName("/robot", "cmd_vel"), test.ShouldEqual, "/robot/cmd_vel")
	test.That(t, ros.ResolveName("robot", "cmd_vel"), test.ShouldEqual, "/robot/cmd_vel")
	test.That(t, ros.ResolveName("/robot", "/abs//topic"), test.ShouldEqual, "/abs/topic")
}
