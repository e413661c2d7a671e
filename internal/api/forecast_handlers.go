package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/store/format"
)

// contentTypeFor maps a registered format name to its HTTP content type.
var contentTypeFor = map[string]string{
	"json":    "application/json",
	"csv":     "text/csv",
	"xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"parquet": "application/octet-stream",
}

// resolveFormat reads the ?format= query parameter, defaulting to json
// and accepting "excel" as an alias for the registered "xlsx" codec.
func resolveFormat(r *http.Request) (format.Format, error) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = "json"
	}
	if name == "excel" {
		name = "xlsx"
	}
	return format.Get(name)
}

// writeEnsemble encodes ens via the requested format and streams it to
// w. Format.Write takes a path rather than an io.Writer, so the
// ensemble is staged through a temp file and copied out — the same
// write-then-serve shape the Forecast Store itself uses for artifacts.
func (s *Server) writeEnsemble(w http.ResponseWriter, r *http.Request, ens *forecast.ForecastEnsemble) {
	fmtCodec, err := resolveFormat(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmp, err := os.CreateTemp("", "gridcast-forecast-*."+fmtCodec.Ext())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to stage response")
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	table := format.ToTable(ens)
	if err := fmtCodec.Write(tmpPath, table); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ct := contentTypeFor[fmtCodec.Name()]
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func parseProduct(r *http.Request) (market.Product, error) {
	p := market.Product(chi.URLParam(r, "product"))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown product %q", string(p))
	}
	return p, nil
}

// handleGetForecast serves GET /forecasts/{date}/{product} and its
// /forecasts/model/{date}/{product} alias — both resolve to the same
// handler, there is exactly one implementation.
func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	product, err := parseProduct(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := s.parseDate(chi.URLParam(r, "date"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ens, err := s.store.Get(date, product, s.loc)
	if err != nil {
		if _, ok := err.(*store.NotFoundError); ok {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeEnsemble(w, r, ens)
}

// handleGetLatestForecast serves GET /forecasts/latest/{product} and
// its /forecasts/model/latest/{product} alias.
func (s *Server) handleGetLatestForecast(w http.ResponseWriter, r *http.Request) {
	product, err := parseProduct(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ens, err := s.store.GetLatest(product)
	if err != nil {
		if _, ok := err.(*store.NotFoundError); ok {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeEnsemble(w, r, ens)
}

// handleGetRange serves GET /forecasts/range/{start}/{end}/{product},
// returning every ensemble whose window intersects [start, end] as a
// JSON object {product, count, forecasts}, where forecasts is the array
// of ensembles (range responses are always JSON regardless of ?format=,
// since the other codecs are single-ensemble artifact formats).
func (s *Server) handleGetRange(w http.ResponseWriter, r *http.Request) {
	product, err := parseProduct(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := s.parseDate(chi.URLParam(r, "start"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := s.parseDate(chi.URLParam(r, "end"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ensembles, err := s.store.GetRange(start, end, product)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"product":   product,
		"count":     len(ensembles),
		"forecasts": ensembles,
	})
}
