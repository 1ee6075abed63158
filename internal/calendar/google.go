package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/syllabus-sync/constants"
)

// GoogleConfig configures the Google Calendar provider. The endpoint fields
// are only set in tests.
type GoogleConfig struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	HTTPClient       *http.Client
	TokenURL         string
	CalendarEndpoint string
	UserinfoEndpoint string
}

type GoogleProvider struct {
	oauth  *oauth2.Config
	cfg    GoogleConfig
	logger *slog.Logger
}

func NewGoogleProvider(cfg GoogleConfig, logger *slog.Logger) *GoogleProvider {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{gcal.CalendarScope, goauth2.UserinfoEmailScope},
		},
		cfg:    cfg,
		logger: logger,
	}
}

func (p *GoogleProvider) Name() string { return constants.ProviderGoogle }

// AuthCodeURL asks for offline access and forces the consent screen so a
// refresh token is always returned.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) ([]byte, error) {
	tok, err := p.oauth.Exchange(p.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("google exchange: %w", classify(err))
	}
	if tok.RefreshToken == "" {
		p.logger.Warn("calendar.google.no_refresh_token")
	}
	return json.Marshal(tok)
}

func (p *GoogleProvider) Session(ctx context.Context, credential []byte) (Session, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(credential, &tok); err != nil {
		return nil, fmt.Errorf("decode google credential: %w", errors.Join(ErrCredentialRejected, err))
	}
	ctx = p.withClient(ctx)
	src := &recordingSource{base: p.oauth.TokenSource(ctx, &tok), initial: tok, latest: &tok}
	httpClient := oauth2.NewClient(ctx, src)

	calOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if p.cfg.CalendarEndpoint != "" {
		calOpts = append(calOpts, option.WithEndpoint(p.cfg.CalendarEndpoint))
	}
	cal, err := gcal.NewService(ctx, calOpts...)
	if err != nil {
		return nil, fmt.Errorf("google calendar client: %w", err)
	}
	infoOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if p.cfg.UserinfoEndpoint != "" {
		infoOpts = append(infoOpts, option.WithEndpoint(p.cfg.UserinfoEndpoint))
	}
	info, err := goauth2.NewService(ctx, infoOpts...)
	if err != nil {
		return nil, fmt.Errorf("google userinfo client: %w", err)
	}
	return &googleSession{cal: cal, info: info, src: src}, nil
}

func (p *GoogleProvider) withClient(ctx context.Context) context.Context {
	if p.cfg.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
}

// recordingSource remembers the last token handed out so a refresh can be
// written back to storage.
type recordingSource struct {
	base    oauth2.TokenSource
	initial oauth2.Token

	mu     sync.Mutex
	latest *oauth2.Token
}

func (r *recordingSource) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest.Valid() {
		return r.latest, nil
	}
	tok, err := r.base.Token()
	if err != nil {
		return nil, classify(err)
	}
	r.latest = tok
	return tok, nil
}

func (r *recordingSource) snapshot() (oauth2.Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := r.latest.AccessToken != r.initial.AccessToken || r.latest.RefreshToken != r.initial.RefreshToken
	return *r.latest, changed
}

type googleSession struct {
	cal  *gcal.Service
	info *goauth2.Service
	src  *recordingSource
}

func (s *googleSession) AccountEmail(ctx context.Context) (string, error) {
	me, err := s.info.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google userinfo: %w", classify(err))
	}
	return me.Email, nil
}

// calendarAliases are existing calendar names reused instead of creating one.
var calendarAliases = []string{"academic", "classes", "study"}

// EnsureCalendar reuses a calendar the user owns whose name matches name or
// one of calendarAliases, and creates name otherwise. When creation is
// refused for a reason other than auth or load, events go to "primary".
func (s *googleSession) EnsureCalendar(ctx context.Context, name, timeZone string) (string, error) {
	wanted := append([]string{strings.ToLower(name)}, calendarAliases...)
	var found string
	err := s.cal.CalendarList.List().MinAccessRole("owner").Pages(ctx, func(page *gcal.CalendarList) error {
		for _, c := range page.Items {
			if found == "" && slices.Contains(wanted, strings.ToLower(strings.TrimSpace(c.Summary))) {
				found = c.Id
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("google list calendars: %w", classify(err))
	}
	if found != "" {
		return found, nil
	}
	created, err := s.cal.Calendars.Insert(&gcal.Calendar{
		Summary:     name,
		Description: "Classes, exams and important dates",
		TimeZone:    timeZone,
	}).Context(ctx).Do()
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrTransient) || errors.Is(err, ErrCredentialRejected) {
			return "", fmt.Errorf("google create calendar: %w", err)
		}
		return "primary", nil
	}
	return created.Id, nil
}

func (s *googleSession) CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	out, err := s.cal.Events.Insert(calendarID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google create event: %w", classify(err))
	}
	return out.Id, nil
}

func (s *googleSession) UpdateEvent(ctx context.Context, calendarID, eventID string, ev Event) error {
	if _, err := s.cal.Events.Update(calendarID, eventID, toGoogleEvent(ev)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("google update event: %w", classify(err))
	}
	return nil
}

func (s *googleSession) Credential() ([]byte, bool, error) {
	tok, changed := s.src.snapshot()
	b, err := json.Marshal(&tok)
	return b, changed, err
}

// toGoogleEvent builds an all-day event; Google's end date is exclusive.
func toGoogleEvent(ev Event) *gcal.Event {
	return &gcal.Event{
		Summary:      ev.Summary,
		Description:  ev.Description,
		Location:     ev.Location,
		Start:        &gcal.EventDateTime{Date: ev.Date.String()},
		End:          &gcal.EventDateTime{Date: ev.Date.AddDays(1).String()},
		Transparency: "transparent",
	}
}

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// 403 reasons that mean the grant itself is no good. Any other 403 is about
// one event and fails only that event.
var credentialReasons = map[string]bool{
	"insufficientPermissions": true,
	"authError":               true,
}

// classify tags err with ErrTransient, ErrCredentialRejected or ErrEventGone.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return errors.Join(ErrCredentialRejected, err)
		case gerr.Code == http.StatusForbidden:
			for _, item := range gerr.Errors {
				if rateLimitReasons[item.Reason] {
					return errors.Join(ErrTransient, err)
				}
			}
			for _, item := range gerr.Errors {
				if credentialReasons[item.Reason] {
					return errors.Join(ErrCredentialRejected, err)
				}
			}
			return err
		case gerr.Code == http.StatusNotFound, gerr.Code == http.StatusGone:
			return errors.Join(ErrEventGone, err)
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
			return errors.Join(ErrTransient, err)
		}
		return err
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return errors.Join(ErrTransient, err)
		}
		return errors.Join(ErrCredentialRejected, err)
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrCredentialRejected) || errors.Is(err, ErrEventGone) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTransient, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return errors.Join(ErrTransient, err)
	}
	return err
}
