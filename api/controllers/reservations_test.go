package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linyucheng/seatbook-backend/api/responses"
	"github.com/linyucheng/seatbook-backend/internal/booking"
	pkgerrors "github.com/linyucheng/seatbook-backend/pkg/errors"
	"github.com/linyucheng/seatbook-backend/pkg/pagination"
)

type stubReservations struct {
	bookReq     booking.BookRequest
	bookResult  booking.BookResult
	bookErr     error
	cancelled   string
	listParams  pagination.Params
	listTable   *int
	exportTable *int
	exportErr   error
}

func (s *stubReservations) Book(_ context.Context, req booking.BookRequest) (booking.BookResult, error) {
	s.bookReq = req
	return s.bookResult, s.bookErr
}

func (s *stubReservations) GetReservation(_ context.Context, id string) (booking.Reservation, error) {
	if id == "missing" {
		return booking.Reservation{}, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return booking.Reservation{ID: id}, nil
}

func (s *stubReservations) UpdateDetails(_ context.Context, id string, _ booking.UpdateRequest) (booking.Reservation, error) {
	return booking.Reservation{ID: id}, nil
}

func (s *stubReservations) Cancel(_ context.Context, id string) error {
	s.cancelled = id
	return nil
}

func (s *stubReservations) ListReservations(_ context.Context, params pagination.Params, tableID *int) (booking.ReservationPage, error) {
	s.listParams = params
	s.listTable = tableID
	return booking.ReservationPage{Page: params.Page}, nil
}

func (s *stubReservations) ExportCSV(_ context.Context, w io.Writer, tableID *int) error {
	s.exportTable = tableID
	if s.exportErr != nil {
		return s.exportErr
	}
	_, err := w.Write([]byte("id,table_id\n"))
	return err
}

func (s *stubReservations) ExportFilename() string { return "reservations_2026-08-29.csv" }

func testRouter(svc ReservationsService) http.Handler {
	r := chi.NewRouter()
	r.Post("/reservations", CreateReservation(svc, nil))
	r.Get("/reservations", ListReservations(svc, nil))
	r.Get("/reservations/export", ExportReservations(svc, nil))
	r.Get("/reservations/{id}", GetReservation(svc, nil))
	r.Put("/reservations/{id}", UpdateReservation(svc, nil))
	r.Delete("/reservations/{id}", DeleteReservation(svc, nil))
	return r
}

func TestCreateReservationForwardsIdempotencyKey(t *testing.T) {
	svc := &stubReservations{bookResult: booking.BookResult{Reservation: booking.Reservation{ID: "r-1"}}}
	router := testRouter(svc)

	body := bytes.NewBufferString(`{"table_id":12,"seats_taken":2,"employee_name":"Ada","login_id":"ada01"}`)
	req := httptest.NewRequest(http.MethodPost, "/reservations", body)
	req.Header.Set("Idempotency-Key", "tok-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tok-1", svc.bookReq.IdempotencyToken)
	assert.Equal(t, 12, svc.bookReq.TableID)
	assert.Equal(t, 2, svc.bookReq.Seats)
}

func TestCreateReservationReplayReturns200(t *testing.T) {
	svc := &stubReservations{bookResult: booking.BookResult{
		Reservation: booking.Reservation{ID: "r-1"},
		Replayed:    true,
	}}
	router := testRouter(svc)

	body := bytes.NewBufferString(`{"table_id":1,"seats_taken":1,"login_id":"ada"}`)
	req := httptest.NewRequest(http.MethodPost, "/reservations", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateReservationRejectsBadBody(t *testing.T) {
	svc := &stubReservations{}
	router := testRouter(svc)

	cases := []string{
		`{"seats_taken":1,"login_id":"ada"}`,
		`{"table_id":1,"login_id":"ada"}`,
		`{"table_id":1,"seats_taken":1}`,
		`{"table_id":1,"seats_taken":1,"login_id":"ada","bogus":true}`,
		`not json`,
	}
	for _, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(payload))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %s", payload)
	}
}

func TestCreateReservationMapsSeatShortage(t *testing.T) {
	svc := &stubReservations{bookErr: pkgerrors.New(pkgerrors.CodeInsufficientSeats, "not enough seats left")}
	router := testRouter(svc)

	body := bytes.NewBufferString(`{"table_id":1,"seats_taken":3,"login_id":"ada"}`)
	req := httptest.NewRequest(http.MethodPost, "/reservations", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	var envelope responses.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "INSUFFICIENT_SEATS", envelope.Error.Code)
}

func TestGetReservationNotFound(t *testing.T) {
	router := testRouter(&stubReservations{})
	req := httptest.NewRequest(http.MethodGet, "/reservations/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteReservation(t *testing.T) {
	svc := &stubReservations{}
	router := testRouter(svc)
	req := httptest.NewRequest(http.MethodDelete, "/reservations/r-9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r-9", svc.cancelled)
}

func TestListReservationsParsesQuery(t *testing.T) {
	svc := &stubReservations{}
	router := testRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/reservations?page=2&page_size=10&table_id=7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.listParams.Page)
	assert.Equal(t, 10, svc.listParams.PageSize)
	require.NotNil(t, svc.listTable)
	assert.Equal(t, 7, *svc.listTable)
}

func TestListReservationsRejectsBadQuery(t *testing.T) {
	router := testRouter(&stubReservations{})
	req := httptest.NewRequest(http.MethodGet, "/reservations?table_id=abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportReservationsSetsAttachment(t *testing.T) {
	router := testRouter(&stubReservations{})
	req := httptest.NewRequest(http.MethodGet, "/reservations/export", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reservations_2026-08-29.csv")
	assert.Contains(t, w.Body.String(), "id,table_id")
}

func TestExportReservationsFiltersByTable(t *testing.T) {
	svc := &stubReservations{}
	router := testRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/reservations/export?table_id=3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.exportTable)
	assert.Equal(t, 3, *svc.exportTable)
}

func TestExportReservationsStoreFailure(t *testing.T) {
	svc := &stubReservations{exportErr: pkgerrors.New(pkgerrors.CodeDependency, "storage unavailable")}
	router := testRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/reservations/export", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"), "no attachment headers on failure")

	var envelope responses.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "DEPENDENCY_ERROR", envelope.Error.Code)
}
