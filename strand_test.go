package strand

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/metrics"
	"github.com/indigo-web/strand/service"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

var page = strings.Repeat("<p>Lorem ipsum dolor sit amet, consectetur adipiscing elit.</p>\n", 300)

func application() service.Factory[net.Addr, *http.Request, *http.Response] {
	return service.Shared[net.Addr](service.Func[*http.Request, *http.Response](
		func(_ context.Context, req *http.Request) (*http.Response, error) {
			switch req.Path {
			case "/page":
				return http.NewResponse().
					Header("Content-Type", "text/html").
					Stream(body.Chunks([]byte(page[:len(page)/2]), []byte(page[len(page)/2:]))), nil
			case "/slow":
				time.Sleep(200 * time.Millisecond)
				return http.Respond(status.OK, "finally"), nil
			default:
				return http.Respond(status.OK, "Hello, world!"), nil
			}
		},
	))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.NET.AcceptLoopInterruptPeriod = 50 * time.Millisecond
	cfg.NET.ShutdownTimeout = 2 * time.Second
	cfg.Clock.Resolution = 10 * time.Millisecond

	return cfg
}

type running struct {
	app    *App
	cancel context.CancelFunc
	errCh  chan error
	url    string
}

func start(t *testing.T, app *App, scheme string) *running {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	app.NotifyOnStart(func() {
		close(started)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Serve(ctx, application())
	}()

	select {
	case <-started:
	case err := <-errCh:
		cancel()
		require.FailNow(t, "app failed to start", err)
	}

	addrs := app.Addrs()
	require.Len(t, addrs, 1)

	return &running{
		app:    app,
		cancel: cancel,
		errCh:  errCh,
		url:    scheme + "://" + addrs[0].String(),
	}
}

func (r *running) wait(t *testing.T) error {
	select {
	case err := <-r.errCh:
		return err
	case <-time.After(5 * time.Second):
		require.FailNow(t, "app didn't stop")
		return nil
	}
}

func get(t *testing.T, client *nethttp.Client, url string) (*nethttp.Response, string) {
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(data)
}

func TestApp(t *testing.T) {
	t.Run("serve and shut down", func(t *testing.T) {
		m := metrics.New("strand", nil)
		stopped := make(chan struct{})
		app := New(testConfig()).
			Metrics(m).
			Listen("127.0.0.1:0").
			NotifyOnStop(func() {
				close(stopped)
			})
		r := start(t, app, "http")
		client := &nethttp.Client{Transport: &nethttp.Transport{}}

		resp, text := get(t, client, r.url+"/")
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)
		require.Equal(t, "Hello, world!", text)

		// the transport asks for gzip and decompresses it transparently
		resp, text = get(t, client, r.url+"/page")
		require.True(t, resp.Uncompressed)
		require.Equal(t, "text/html", resp.Header.Get("Content-Type"))
		require.Equal(t, page, text)

		require.Eventually(t, func() bool {
			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

			return strings.Contains(rec.Body.String(), `strand_server_requests_total{code="200"} 2`)
		}, time.Second, 10*time.Millisecond)

		r.cancel()
		require.NoError(t, r.wait(t))
		<-stopped
		client.CloseIdleConnections()
	})

	t.Run("graceful shutdown finishes requests", func(t *testing.T) {
		r := start(t, New(testConfig()).Listen("127.0.0.1:0"), "http")
		client := &nethttp.Client{Transport: &nethttp.Transport{}}
		defer client.CloseIdleConnections()

		// warm up the connection, so the slow request doesn't race with the listener
		get(t, client, r.url+"/")

		type result struct {
			text string
			err  error
		}
		results := make(chan result, 1)
		go func() {
			resp, err := client.Get(r.url + "/slow")
			if err != nil {
				results <- result{err: err}
				return
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			results <- result{text: string(data), err: err}
		}()

		time.Sleep(50 * time.Millisecond)
		r.cancel()

		res := <-results
		require.NoError(t, res.err)
		require.Equal(t, "finally", res.text)
		require.NoError(t, r.wait(t))
	})

	t.Run("stop", func(t *testing.T) {
		r := start(t, New(testConfig()).Listen("127.0.0.1:0"), "http")
		defer r.cancel()

		conn, err := net.Dial("tcp", strings.TrimPrefix(r.url, "http://"))
		require.NoError(t, err)
		defer conn.Close()

		r.app.Stop()
		r.app.Stop()
		require.NoError(t, r.wait(t))

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, err = conn.Read(make([]byte, 1))
		require.Error(t, err)
	})

	t.Run("auto HTTPS on localhost", func(t *testing.T) {
		r := start(t, New(testConfig()).AutoHTTPS("127.0.0.1:0"), "https")
		client := &nethttp.Client{Transport: &nethttp.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}}
		defer client.CloseIdleConnections()

		resp, text := get(t, client, r.url+"/")
		require.NotNil(t, resp.TLS)
		require.Equal(t, "Hello, world!", text)

		r.cancel()
		require.NoError(t, r.wait(t))
	})

	t.Run("listener failure", func(t *testing.T) {
		fail := errors.New("port is taken")
		app := New(testConfig()).Listen("127.0.0.1:0").Listen("127.0.0.1:0", func(string, string) (net.Listener, error) {
			return nil, fail
		})

		require.ErrorIs(t, app.Serve(context.Background(), application()), fail)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.KeepAlive.Timeout = 0

		var verr config.ValidationError
		require.ErrorAs(t, New(cfg).Serve(context.Background(), application()), &verr)
	})
}

func TestCompressedBytes(t *testing.T) {
	r := start(t, New(testConfig()).Listen("127.0.0.1:0"), "http")
	defer func() {
		r.cancel()
		require.NoError(t, r.wait(t))
	}()

	client := &nethttp.Client{Transport: &nethttp.Transport{DisableCompression: true}}
	defer client.CloseIdleConnections()

	req, err := nethttp.NewRequest("GET", r.url+"/page", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	reader, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, page, string(data))
}
