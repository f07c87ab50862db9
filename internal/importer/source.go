package importer

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-cli/internal/config"
	"github.com/sells-group/attribution-cli/internal/resilience"
)

// Source resolves an import reference (local path, http(s) URL, or ftp URL)
// to a readable stream.
type Source struct {
	client *http.Client
	retry  resilience.RetryConfig
	ftp    config.FTPConfig
}

// NewSource builds a Source from importer settings.
func NewSource(cfg config.ImporterConfig) *Source {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("importer", "download")
	return &Source{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: retry,
		ftp:   cfg.FTP,
	}
}

// Open returns a reader for ref. The caller must close it.
func (s *Source) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return s.openHTTP(ctx, ref)
	case strings.HasPrefix(ref, "ftp://"):
		return s.openFTP(ctx, ref)
	default:
		f, err := os.Open(ref)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", ref)
		}
		return f, nil
	}
}

// FetchToFile downloads ref into dir and returns the local path. Used for
// formats that need random access to a file on disk.
func (s *Source) FetchToFile(ctx context.Context, ref, dir string) (string, error) {
	rc, err := s.Open(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close() //nolint:errcheck

	f, err := os.CreateTemp(dir, "import-*"+refExt(ref))
	if err != nil {
		return "", eris.Wrap(err, "importer: create temp file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, rc); err != nil {
		os.Remove(f.Name())
		return "", eris.Wrapf(err, "importer: download %s", ref)
	}
	return f.Name(), nil
}

func (s *Source) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "importer: create request")
		}
		req.Header.Set("User-Agent", "attribution-cli/1.0")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: get %s", rawURL)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			err := eris.Errorf("importer: unexpected status %d from %s", resp.StatusCode, rawURL)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return resp.Body, nil
	})
}

func (s *Source) openFTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	host, path, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if s.ftp.Host != "" {
		host = s.ftp.Host
	}

	user, pass := s.ftp.User, s.ftp.Password
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(s.client.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "importer: ftp dial")
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "importer: ftp login")
	}
	resp, err := conn.Retr(path)
	if err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrapf(err, "importer: ftp retrieve %s", path)
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "importer: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("importer: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("importer: empty path in ftp url")
	}
	return host, path, nil
}

// ftpConnReader ties the FTP data stream to its control connection so that
// closing the reader also disconnects from the server.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "importer: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "importer: quit ftp connection")
	}
	return nil
}

// refExt returns the file extension of a ref, working for both paths and URLs.
func refExt(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		ref = u.Path
	}
	if i := strings.LastIndex(ref, "."); i >= 0 {
		return strings.ToLower(ref[i:])
	}
	return ""
}
