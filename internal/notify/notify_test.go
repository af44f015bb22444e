package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/waitlist"
)

func newGateway(t *testing.T, status int, got *textMessage) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/123/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.abc"}]}`))
		} else {
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) config.WhatsAppConfig {
	return config.WhatsAppConfig{APIURL: url, Token: "test-token", PhoneNumberID: "123"}
}

func TestNewWhatsAppSender_RequiresCredentials(t *testing.T) {
	_, err := NewWhatsAppSender(config.WhatsAppConfig{APIURL: "http://x"}, nil)
	assert.Error(t, err)
}

func TestWhatsAppSender_SendText(t *testing.T) {
	var got textMessage
	srv := newGateway(t, http.StatusOK, &got)

	s, err := NewWhatsAppSender(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	id, err := s.SendText(context.Background(), "5511987654321", "hello")
	require.NoError(t, err)
	assert.Equal(t, "wamid.abc", id)
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "5511987654321", got.To)
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "hello", got.Text.Body)
}

func TestWhatsAppSender_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := NewWhatsAppSender(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	ctx := context.Background()
	for range 5 {
		_, err := s.SendText(ctx, "5511987654321", "hi")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrGatewayUnavailable)
	}

	_, err = s.SendText(ctx, "5511987654321", "hi")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, int32(5), calls.Load())
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestEmailSender(t *testing.T) {
	d := &fakeDialer{}
	s := &EmailSender{from: "clinic@example.com", dialer: d}

	require.NoError(t, s.SendMail(context.Background(), "maria@example.com", "Appointment booked", "body"))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"maria@example.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Appointment booked"}, d.sent[0].GetHeader("Subject"))

	d.err = errors.New("smtp down")
	assert.Error(t, s.SendMail(context.Background(), "maria@example.com", "x", "y"))

	_, err := NewEmailSender(config.SMTPConfig{})
	assert.Error(t, err)
}

type fakeText struct {
	to   []string
	body []string
	err  error
}

func (f *fakeText) SendText(_ context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.to = append(f.to, to)
	f.body = append(f.body, body)
	return "id", nil
}

type fakeMail struct {
	to []string
}

func (f *fakeMail) SendMail(_ context.Context, to, _, _ string) error {
	f.to = append(f.to, to)
	return nil
}

func TestDispatcher_AppointmentBooked(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	text := &fakeText{}
	mail := &fakeMail{}
	d := NewDispatcher(text, mail, m, "55")

	email := "maria@example.com"
	err := d.AppointmentBooked(context.Background(), appointment.Notice{
		AppointmentID: uuid.New(),
		PatientName:   "Maria Silva",
		PatientPhone:  "11987654321",
		PatientEmail:  &email,
		DoctorName:    "Dr. Ana Souza",
		ExamName:      "Ultrasound",
		Date:          time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
		Time:          "10:00",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"5511987654321"}, text.to)
	assert.Contains(t, text.body[0], "Hello Maria")
	assert.Contains(t, text.body[0], "Mon, Mar 17 2025 at 10:00")
	assert.Equal(t, []string{email}, mail.to)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues(ChannelWhatsApp, statusSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues(ChannelEmail, statusSent)))
}

func TestDispatcher_FailuresAreReturned(t *testing.T) {
	text := &fakeText{err: ErrGatewayUnavailable}
	d := NewDispatcher(text, nil, nil, "55")

	err := d.AppointmentCanceled(context.Background(), appointment.Notice{
		PatientName:  "Maria",
		PatientPhone: "5511987654321",
		Reason:       "vacation",
	})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestDispatcher_SlotOffered(t *testing.T) {
	text := &fakeText{}
	d := NewDispatcher(text, nil, nil, "55")

	err := d.SlotOffered(context.Background(), waitlist.Entry{PatientName: "Bia Costa", PatientPhone: "11900002222"},
		time.Date(2025, 3, 19, 0, 0, 0, 0, time.UTC), "14:00")
	require.NoError(t, err)
	assert.Equal(t, []string{"5511900002222"}, text.to)
	assert.Contains(t, text.body[0], "Hello Bia")
}
