package frontend

import (
	"encoding/json"
	"expvar"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/pascal-fb-martin/houseportal/logger"
	"github.com/pascal-fb-martin/houseportal/peers"
	"github.com/pascal-fb-martin/houseportal/redirect"
)

// Clock lets tests stub the current time; in production it is time.Now.
type Clock func() time.Time

// Tables is the read-only view the front-end needs of the portal's two
// tables, as of the moment a request is handled (no mid-request
// pruning, per spec.md §5's ordering guarantee).
type Tables interface {
	RedirectAll() []redirect.Rule
	RedirectLookup(path string, now int64) (redirect.Rule, bool)
	PeersLive(now int64) []peers.Entry
}

// Server is the HTTP front-end: four administrative routes plus a
// catch-all redirect handler, routed with gorilla/mux in place of the
// teacher's single bare http.Handle("/update", d) registration
// (HTTPserver.go).
type Server struct {
	Host   string
	Tables Tables
	Clock  Clock
	Log    logger.DebugLogger
	router *mux.Router
}

// New builds a Server and wires its routes.
func New(host string, tables Tables, log logger.DebugLogger) *Server {
	if log == nil {
		log = &logger.NullLogger{}
	}
	s := &Server{Host: host, Tables: tables, Clock: time.Now, Log: log}
	r := mux.NewRouter()
	r.HandleFunc("/portal/list", s.handleList).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/portal/peers", s.handlePeers).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/portal/service", s.handleService).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/portal/debug/vars", expvar.Handler()).Methods(http.MethodGet, http.MethodOptions)
	r.PathPrefix("/").HandlerFunc(s.handleCatchAll)
	s.router = r
	return s
}

// ServeHTTP applies CORS policy, then dispatches to the route table.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	crossOrigin := origin != ""
	if crossOrigin {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case http.MethodOptions:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.WriteHeader(http.StatusNoContent)
			return
		default:
			http.Error(w, "Forbidden Cross-Domain", http.StatusForbidden)
			return
		}
	}
	s.router.ServeHTTP(w, r)
}

func (s *Server) now() int64 {
	return s.Clock().Unix()
}

func (s *Server) writeJSON(w http.ResponseWriter, body map[string]interface{}) {
	body["host"] = s.Host
	body["timestamp"] = s.now()
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if err := enc.Encode(body); err != nil {
		s.Log.Errorf("frontend: encode response: %v", err)
	}
}

type redirectView struct {
	Start   int64  `json:"start"`
	Path    string `json:"path"`
	Service string `json:"service,omitempty"`
	Expire  int64  `json:"expire"`
	Target  string `json:"target"`
	Hide    bool   `json:"hide"`
	Active  bool   `json:"active"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	rules := s.Tables.RedirectAll()
	views := make([]redirectView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, toRedirectView(rule, now))
	}
	s.writeJSON(w, map[string]interface{}{
		"portal": map[string]interface{}{"redirect": views},
	})
}

func toRedirectView(rule redirect.Rule, now int64) redirectView {
	active := rule.Expire == redirect.Permanent || rule.Expire > now
	return redirectView{
		Start:   rule.Start,
		Path:    rule.Path,
		Service: rule.Service,
		Expire:  rule.Expire,
		Target:  rule.Target,
		Hide:    rule.Hide,
		Active:  active,
	}
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	live := s.Tables.PeersLive(now)
	endpoints := make([]string, 0, len(live))
	for _, p := range live {
		endpoints = append(endpoints, p.Endpoint)
	}
	s.writeJSON(w, map[string]interface{}{
		"portal": map[string]interface{}{"peers": endpoints},
	})
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	name := r.URL.Query().Get("name")
	rules := s.Tables.RedirectAll()

	if name != "" {
		urls := make([]string, 0)
		for _, rule := range rules {
			if rule.Service != name {
				continue
			}
			if rule.Expire != redirect.Permanent && rule.Expire <= now {
				continue
			}
			urls = append(urls, "http://"+s.Host+rule.Path)
		}
		s.writeJSON(w, map[string]interface{}{
			"portal": map[string]interface{}{
				"service": map[string]interface{}{"name": name, "url": urls},
			},
		})
		return
	}

	views := make([]redirectView, 0)
	for _, rule := range rules {
		if rule.Service == "" {
			continue
		}
		views = append(views, toRedirectView(rule, now))
	}
	s.writeJSON(w, map[string]interface{}{
		"portal": map[string]interface{}{"redirect": views},
	})
}

const unresolvableBody = "Unresolvable redirection."

func (s *Server) handleCatchAll(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	rule, ok := s.Tables.RedirectLookup(r.URL.Path, now)
	if !ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, unresolvableBody)
		return
	}
	tail := r.URL.Path
	if rule.Hide {
		tail = tail[len(rule.Path):]
	}
	location := "http://" + rule.Target + tail
	if r.URL.RawQuery != "" {
		location += "?" + r.URL.RawQuery
	}
	if u, err := url.Parse(location); err == nil {
		location = u.String()
	}
	status := http.StatusFound
	if rule.Expire == redirect.Permanent {
		status = http.StatusMovedPermanently
	}
	w.Header().Set("Location", location)
	w.WriteHeader(status)
}
