package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/tripdesk/internal/domain"
)

// MemoryStore is an in-process Store. Every booking runs its check, debit
// and insert under one lock.
type MemoryStore struct {
	mu       sync.Mutex
	flights  ordered[domain.Flight]
	shuttles ordered[domain.Shuttle]
	hotels   ordered[domain.Hotel]
	tours    ordered[domain.Tour]
	users    ordered[domain.User]
	bookings []domain.Booking
	now      func() time.Time
}

// ordered keeps records by id in insertion order.
type ordered[T any] struct {
	byID  map[string]*T
	order []string
}

func (o *ordered[T]) put(id string, v T) {
	if o.byID == nil {
		o.byID = make(map[string]*T)
	}
	if _, ok := o.byID[id]; !ok {
		o.order = append(o.order, id)
	}
	o.byID[id] = &v
}

func (o *ordered[T]) get(id string) (*T, bool) {
	v, ok := o.byID[id]
	return v, ok
}

func (o *ordered[T]) filter(match func(*T) bool) []T {
	out := []T{}
	for _, id := range o.order {
		if v := o.byID[id]; match(v) {
			out = append(out, *v)
		}
	}
	return out
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) SearchFlights(_ context.Context, q FlightQuery) ([]domain.Flight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flights.filter(func(f *domain.Flight) bool {
		return match(q.DepartureAirport, f.DepartureAirport) &&
			match(q.ArrivalAirport, f.ArrivalAirport) &&
			match(q.Airline, f.Airline) &&
			(q.DepartureDay == nil || sameDay(f.DepartureTime, *q.DepartureDay))
	}), nil
}

func (m *MemoryStore) SearchShuttles(_ context.Context, q ShuttleQuery) ([]domain.Shuttle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuttles.filter(func(s *domain.Shuttle) bool {
		return match(q.FromAirport, s.FromAirport) &&
			match(q.To, s.To) &&
			(q.PickupDatetime == nil || s.PickupDatetime.Equal(*q.PickupDatetime))
	}), nil
}

func (m *MemoryStore) SearchHotels(_ context.Context, q HotelQuery) ([]domain.Hotel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hotels.filter(func(h *domain.Hotel) bool {
		return match(q.Location, h.Location) &&
			match(q.Name, h.Name) &&
			match(q.PriceTier, h.PriceTier) &&
			match(q.CheckinDate, h.CheckinDate) &&
			match(q.CheckoutDate, h.CheckoutDate)
	}), nil
}

func (m *MemoryStore) SearchTours(_ context.Context, q TourQuery) ([]domain.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tours.filter(func(t *domain.Tour) bool {
		return match(q.Destination, t.Destination) &&
			(q.DurationDays == 0 || q.DurationDays == t.DurationDays)
	}), nil
}

func (m *MemoryStore) BookFlight(_ context.Context, userID, flightID string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flights.get(flightID)
	if !ok {
		return failed(notFound("Flight", flightID)), nil
	}
	return m.debitAndRecord(userID, flightID, domain.BookingFlight, f.Price), nil
}

func (m *MemoryStore) BookShuttle(_ context.Context, userID, shuttleID string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shuttles.get(shuttleID)
	if !ok {
		return failed(notFound("Shuttle", shuttleID)), nil
	}
	return m.debitAndRecord(userID, shuttleID, domain.BookingShuttle, s.Price), nil
}

// debitAndRecord must be called with m.mu held.
func (m *MemoryStore) debitAndRecord(userID, resourceID string, kind domain.BookingKind, price float64) Outcome {
	u, ok := m.users.get(userID)
	if !ok {
		return failed(notFound("User", userID))
	}
	if u.Balance < price {
		return failed(MsgInsufficientBalance)
	}
	u.Balance -= price
	return confirmed(m.record(userID, resourceID, kind))
}

func (m *MemoryStore) BookHotel(_ context.Context, userID, hotelID string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hotels.get(hotelID)
	if !ok {
		return failed(notFound("Hotel", hotelID)), nil
	}
	if _, ok := m.users.get(userID); !ok {
		return failed(notFound("User", userID)), nil
	}
	if h.Booked != 0 {
		return failed(MsgHotelBooked), nil
	}
	h.Booked = 1
	return confirmed(m.record(userID, hotelID, domain.BookingHotel)), nil
}

func (m *MemoryStore) record(userID, resourceID string, kind domain.BookingKind) *domain.Booking {
	b := domain.Booking{
		ID:          uuid.NewString(),
		UserID:      userID,
		ResourceID:  resourceID,
		Kind:        kind,
		BookingTime: m.now().UTC(),
		Status:      StatusConfirmed,
	}
	m.bookings = append(m.bookings, b)
	return &b
}

func (m *MemoryStore) User(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) Bookings(_ context.Context, userID string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) Seed(_ context.Context, d Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range d.Flights {
		ensureID(&f.ID)
		m.flights.put(f.ID, f)
	}
	for _, sh := range d.Shuttles {
		ensureID(&sh.ID)
		m.shuttles.put(sh.ID, sh)
	}
	for _, h := range d.Hotels {
		ensureID(&h.ID)
		m.hotels.put(h.ID, h)
	}
	for _, t := range d.Tours {
		ensureID(&t.ID)
		m.tours.put(t.ID, t)
	}
	for _, u := range d.Users {
		ensureID(&u.ID)
		m.users.put(u.ID, u)
	}
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }

// ensureID assigns a fresh id to records seeded without one.
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func match(want, have string) bool {
	return want == "" || want == have
}
