package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// ErrScraperFailed marks a scraper process that exited non-zero or wrote to stderr.
var ErrScraperFailed = errors.New("fetcher: scraper process failed")

// maxStderr caps how much scraper stderr is carried in errors.
const maxStderr = 2048

// ScraperOptions parameterise a scraper subprocess.
type ScraperOptions struct {
	Name    string
	Command string
	Args    []string
	WorkDir string
	// Credentials maps a flag name (without dashes) to the env var holding its value.
	Credentials map[string]string
	// PassMonths appends --months; bank scrapers only take --date.
	PassMonths bool
	Timeout    time.Duration
}

// Scraper runs an external scraper and decodes its JSON stdout.
type Scraper struct {
	opts      ScraperOptions
	logger    zerolog.Logger
	lookupEnv func(string) (string, bool)
}

// NewScraper constructs a scraper fetcher.
func NewScraper(opts ScraperOptions, logger zerolog.Logger) *Scraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Scraper{
		opts:      opts,
		logger:    logger.With().Str("component", "scraper").Str("source", opts.Name).Logger(),
		lookupEnv: os.LookupEnv,
	}
}

// Fetch runs the scraper for the window and returns the decoded payload.
// Numbers are kept as json.Number so amounts reach decimal without float loss.
func (s *Scraper) Fetch(ctx context.Context, window Window) (any, error) {
	if s.opts.Command == "" {
		return nil, errors.New("scraper command not configured")
	}

	args, err := s.buildArgs(window)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.opts.Command, args...)
	cmd.Dir = s.opts.WorkDir
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("scraper %s: %w", s.opts.Name, ctx.Err())
	}
	if runErr != nil || stderr.Len() > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrScraperFailed, s.opts.Name, describeFailure(runErr, stderr.Bytes()))
	}

	dec := json.NewDecoder(&stdout)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode scraper %s output: %w", s.opts.Name, err)
	}

	s.logger.Info().
		Str("start_date", window.StartDate()).
		Int("months", window.Months).
		Dur("elapsed", elapsed).
		Int("bytes", stdout.Len()).
		Msg("scraper finished")
	return payload, nil
}

func (s *Scraper) buildArgs(window Window) ([]string, error) {
	args := append([]string{}, s.opts.Args...)
	args = append(args, "--date", window.StartDate())
	if s.opts.PassMonths {
		args = append(args, "--months", strconv.Itoa(window.Months))
	}

	flags := make([]string, 0, len(s.opts.Credentials))
	for flag := range s.opts.Credentials {
		flags = append(flags, flag)
	}
	sort.Strings(flags)
	for _, flag := range flags {
		envName := s.opts.Credentials[flag]
		value, ok := s.lookupEnv(envName)
		if !ok || value == "" {
			return nil, fmt.Errorf("scraper %s: credential %s: environment variable %s is not set", s.opts.Name, flag, envName)
		}
		args = append(args, "--"+flag, value)
	}
	return args, nil
}

func describeFailure(runErr error, stderr []byte) string {
	msg := strings.TrimSpace(string(stderr))
	if len(msg) > maxStderr {
		cut := maxStderr
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	switch {
	case runErr != nil && msg != "":
		return fmt.Sprintf("%v: %s", runErr, msg)
	case runErr != nil:
		return runErr.Error()
	default:
		return msg
	}
}

var _ PayloadFetcher = (*Scraper)(nil)
