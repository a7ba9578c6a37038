package tfhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/brutella/hc/log"
	"github.com/gorilla/mux"

	"github.com/cloudkucooland/jeedombridge/accessory"
	"github.com/cloudkucooland/jeedombridge/config"
	"github.com/cloudkucooland/jeedombridge/jeedom"
	"github.com/cloudkucooland/jeedombridge/platform"
)

// Platform is the primary handle
type Platform struct {
	Registry *jeedom.Registry
	Running  bool

	srv *http.Server
}

type switchState struct {
	Name    string `json:"name"`
	On      bool   `json:"on"`
	Polling bool   `json:"polling"`
}

// Startup is called by the platform management to get things running
func (h *Platform) Startup(c *config.Config) platform.Control {
	if c.HTTPAddress == "" {
		log.Info.Print("no HTTPAddress set, HTTP control channel disabled")
		return h
	}

	h.srv = &http.Server{
		Addr:         c.HTTPAddress,
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      h.Router(),
	}

	srv := h.srv
	go func() {
		log.Info.Printf("starting up HTTP control channel on %s", c.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Info.Print(err)
		}
	}()

	h.Running = true
	return h
}

// Shutdown is called by the platform management to shut things down
func (h *Platform) Shutdown() platform.Control {
	if h.srv == nil {
		return h
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		log.Info.Print(err)
	}
	h.Running = false
	return h
}

// Router registers the control channel routes
func (h *Platform) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(debugMW)
	r.HandleFunc("/", homeHandler).Methods(http.MethodGet)
	r.HandleFunc("/switches", h.listHandler).Methods(http.MethodGet)
	r.HandleFunc("/switch/{name}", h.getHandler).Methods(http.MethodGet)
	r.HandleFunc("/switch/{name}/{state:on|off}", h.setHandler).Methods(http.MethodPut, http.MethodPost)
	return r
}

func homeHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug.Print("HomeHandler requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Platform) listHandler(w http.ResponseWriter, r *http.Request) {
	recs := h.Registry.Records()
	out := make([]switchState, 0, len(recs))
	for _, rec := range recs {
		out = append(out, switchState{Name: rec.Name, On: rec.State(), Polling: rec.Polling})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Platform) getHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	on, err := h.Registry.GetPowerState(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, switchState{Name: name, On: on})
}

func (h *Platform) setHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	on := vars["state"] == "on"

	log.Info.Printf("setting [%s] to [%t] from HTTP handler", name, on)
	if err := h.Registry.SetPowerState(r.Context(), name, on); err != nil {
		writeError(w, err)
		return
	}
	h.Registry.Announce(name)
	rec, ok := h.Registry.Get(name)
	if !ok {
		writeError(w, jeedom.ErrUnknownSwitch)
		return
	}
	writeJSON(w, http.StatusOK, switchState{Name: name, On: rec.State(), Polling: rec.Polling})
}

// AddAccessory - nothing to do, routes look switches up in the registry
func (h *Platform) AddAccessory(c accessory.Config) error {
	return nil
}

// RemoveAccessory - nothing to do, routes look switches up in the registry
func (h *Platform) RemoveAccessory(name string) {}

// Background - just satisfies the Platform interface
func (h *Platform) Background() {
	// nothing to do
}

func statusFor(err error) int {
	var te *jeedom.TransportError
	switch {
	case errors.Is(err, jeedom.ErrUnknownSwitch):
		return http.StatusNotFound
	case errors.Is(err, jeedom.ErrInvalidPayload), errors.As(err, &te):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	log.Info.Print(err)
	writeJSON(w, statusFor(err), map[string]string{"status": "bad", "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Info.Print(err)
	}
}

func debugMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		dump, _ := httputil.DumpRequest(req, false)
		log.Debug.Print(string(dump))
		next.ServeHTTP(res, req)
	})
}
