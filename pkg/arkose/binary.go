package arkose

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-go-golems/regpt/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// ReleaseTag names the release whose assets carry the token binaries.
	ReleaseTag = "funcaptcha_bin"

	DefaultReleasesURL = "https://api.github.com/repos/Zai-Kun/reverse-engineered-chatgpt/releases"
)

// Release is the part of a release feed entry needed to locate a binary.
// The body lists one "<OS name>=<md5>" line per published binary.
type Release struct {
	TagName string  `json:"tag_name"`
	Body    string  `json:"body"`
	Assets  []Asset `json:"assets"`
}

type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Platform identifies the binary published for one operating system.
type Platform struct {
	// OSName as it appears in the release body.
	OSName   string
	FileName string
}

// PlatformFor maps a GOOS value to the published binary. Unknown systems
// get the Linux build.
func PlatformFor(goos string) Platform {
	switch goos {
	case "windows":
		return Platform{OSName: "Windows", FileName: "windows_arkose.dll"}
	case "darwin":
		return Platform{OSName: "Darwin", FileName: "mac_arkose.so"}
	default:
		return Platform{OSName: "Linux", FileName: "linux_arkose.so"}
	}
}

// DefaultBinaryDir is the per-user cache directory the binary is kept in.
func DefaultBinaryDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "regpt", ReleaseTag)
}

// BinaryManager keeps the local copy of the token binary in sync with the
// release feed.
type BinaryManager struct {
	client      HTTPClient
	releasesURL string
	dir         string
	platform    Platform
	policy      security.URLPolicy
}

type BinaryOption func(*BinaryManager)

func WithBinaryHTTPClient(client HTTPClient) BinaryOption {
	return func(m *BinaryManager) {
		if client != nil {
			m.client = client
		}
	}
}

func WithReleasesURL(url string) BinaryOption {
	return func(m *BinaryManager) {
		if url != "" {
			m.releasesURL = url
		}
	}
}

func WithBinaryDir(dir string) BinaryOption {
	return func(m *BinaryManager) {
		if dir != "" {
			m.dir = dir
		}
	}
}

func WithPlatform(p Platform) BinaryOption {
	return func(m *BinaryManager) {
		m.platform = p
	}
}

// WithDownloadPolicy sets which asset URLs may be downloaded from.
func WithDownloadPolicy(policy security.URLPolicy) BinaryOption {
	return func(m *BinaryManager) {
		m.policy = policy
	}
}

func NewBinaryManager(opts ...BinaryOption) *BinaryManager {
	m := &BinaryManager{
		client:      http.DefaultClient,
		releasesURL: DefaultReleasesURL,
		dir:         DefaultBinaryDir(),
		platform:    PlatformFor(runtime.GOOS),
		policy:      security.Strict,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *BinaryManager) Dir() string { return m.dir }

func (m *BinaryManager) Path() string {
	return filepath.Join(m.dir, m.platform.FileName)
}

// PrepareDir makes sure the binary directory exists. A regular file sitting
// at that path is removed first.
func (m *BinaryManager) PrepareDir() error {
	info, err := os.Stat(m.dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		if err := os.Remove(m.dir); err != nil {
			return errors.Wrapf(err, "removing file in place of %s", m.dir)
		}
	case !os.IsNotExist(err):
		return errors.Wrapf(err, "checking %s", m.dir)
	}
	return errors.Wrapf(os.MkdirAll(m.dir, 0o755), "creating %s", m.dir)
}

// LocalChecksum returns the hex md5 of the local binary, or "" when there is none.
// md5 is what the release feed publishes.
func (m *BinaryManager) LocalChecksum() (string, error) {
	f, err := os.Open(m.Path())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "opening token binary")
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "opening token binary")
	}
	if info.IsDir() {
		return "", nil
	}

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "hashing token binary")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FetchReleases reads the release feed.
func (m *BinaryManager) FetchReleases(ctx context.Context) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.releasesURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building releases request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching releases")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching releases: unexpected status %s", resp.Status)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, errors.Wrap(err, "decoding releases")
	}
	return releases, nil
}

// DownloadURL picks the asset to download from releases. It returns "" when
// the feed has nothing for this platform or when the published checksum
// matches localChecksum.
func (m *BinaryManager) DownloadURL(releases []Release, localChecksum string) string {
	for _, rel := range releases {
		if rel.TagName != ReleaseTag {
			continue
		}
		scanner := bufio.NewScanner(strings.NewReader(rel.Body))
		for scanner.Scan() {
			osName, hash, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
			if !ok || osName != m.platform.OSName || hash == localChecksum {
				continue
			}
			for _, asset := range rel.Assets {
				if asset.Name == m.platform.FileName {
					return asset.BrowserDownloadURL
				}
			}
		}
	}
	return ""
}

// Ensure brings the local binary up to date and reports whether it was
// downloaded. A failing release feed is tolerated as long as a local copy
// exists.
func (m *BinaryManager) Ensure(ctx context.Context) (bool, error) {
	if err := m.PrepareDir(); err != nil {
		return false, err
	}
	sum, err := m.LocalChecksum()
	if err != nil {
		return false, err
	}

	releases, err := m.FetchReleases(ctx)
	if err != nil {
		if sum != "" {
			log.Warn().Err(err).Str("path", m.Path()).Msg("Could not check for token binary updates, using local copy")
			return false, nil
		}
		return false, err
	}

	url := m.DownloadURL(releases, sum)
	if url == "" {
		if sum == "" {
			return false, ErrNoBinaryAvailable
		}
		log.Debug().Str("path", m.Path()).Str("md5", sum).Msg("Token binary is up to date")
		return false, nil
	}
	if err := m.Download(ctx, url); err != nil {
		return false, err
	}
	return true, nil
}

// Download fetches url into the binary path. The file is written next to its
// destination and renamed into place, so an interrupted download never
// leaves a truncated binary behind.
func (m *BinaryManager) Download(ctx context.Context, url string) error {
	if err := m.policy.Check(url); err != nil {
		return err
	}
	log.Info().Str("url", url).Str("path", m.Path()).Msg("Downloading token binary")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "building download request")
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "downloading token binary")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("downloading token binary: unexpected status %s", resp.Status)
	}

	f, err := os.CreateTemp(m.dir, ".download-*")
	if err != nil {
		return errors.Wrap(err, "creating temporary file")
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return errors.Wrap(err, "writing token binary")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "syncing token binary")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing token binary")
	}
	if err := os.Chmod(tmp, 0o755); err != nil {
		return errors.Wrap(err, "setting permissions on token binary")
	}
	if err := os.Rename(tmp, m.Path()); err != nil {
		return errors.Wrap(err, "moving token binary into place")
	}
	committed = true
	return nil
}
