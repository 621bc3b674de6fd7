package tools

import (
	"context"
	"strings"
	"time"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/booking"
)

// Tool names.
const (
	SearchFlights  = "search_flights"
	BookFlight     = "book_flight"
	SearchShuttles = "search_shuttles"
	BookShuttle    = "book_shuttle"
	SearchHotels   = "search_hotels"
	BookHotel      = "book_hotel"
	SearchTours    = "search_tours"
)

type searchFlightsArgs struct {
	DepartureAirport string `json:"departure_airport,omitempty" jsonschema:"IATA code of the departure airport, e.g. HAN for Hanoi"`
	ArrivalAirport   string `json:"arrival_airport,omitempty" jsonschema:"IATA code of the arrival airport, e.g. SGN for Ho Chi Minh City"`
	Airline          string `json:"airline,omitempty" jsonschema:"Airline name, e.g. Vietnam Airlines"`
	DepartureDay     string `json:"departure_day,omitempty" jsonschema:"Departure date in YYYY-MM-DD format"`
}

type bookFlightArgs struct {
	FlightID string `json:"flight_id" jsonschema:"ID of the flight to book, taken from search_flights results"`
}

type searchShuttlesArgs struct {
	FromAirport    string `json:"from_airport,omitempty" jsonschema:"IATA code of the pickup airport, e.g. SGN"`
	To             string `json:"to,omitempty" jsonschema:"Drop-off district or address, e.g. Quận 1"`
	PickupDatetime string `json:"pickup_datetime,omitempty" jsonschema:"Exact pickup time in RFC3339 format"`
}

type bookShuttleArgs struct {
	ShuttleID string `json:"shuttle_id" jsonschema:"ID of the shuttle to book, taken from search_shuttles results"`
}

type searchHotelsArgs struct {
	Location     string `json:"location,omitempty" jsonschema:"City of the hotel"`
	Name         string `json:"name,omitempty" jsonschema:"Hotel name"`
	PriceTier    string `json:"price_tier,omitempty" jsonschema:"Price tier: Midscale, Upper Midscale, Upscale or Luxury"`
	CheckinDate  string `json:"checkin_date,omitempty" jsonschema:"Check-in date in YYYY-MM-DD format"`
	CheckoutDate string `json:"checkout_date,omitempty" jsonschema:"Check-out date in YYYY-MM-DD format"`
}

type bookHotelArgs struct {
	HotelID string `json:"hotel_id" jsonschema:"ID of the hotel to book, taken from search_hotels results"`
}

type searchToursArgs struct {
	Destination  string `json:"destination,omitempty" jsonschema:"Tour destination, e.g. Ha Long Bay"`
	DurationDays int    `json:"duration_days,omitempty" jsonschema:"Tour length in days"`
}

// FlightTools returns search_flights and book_flight over store.
func FlightTools(store booking.Store) []agent.Tool {
	search := MustFunc(SearchFlights,
		"Search flights by departure airport, arrival airport, airline or departure day. Omitted fields match any flight.",
		func(ctx context.Context, _ string, a searchFlightsArgs) (any, error) {
			q := booking.FlightQuery{
				DepartureAirport: strings.TrimSpace(a.DepartureAirport),
				ArrivalAirport:   strings.TrimSpace(a.ArrivalAirport),
				Airline:          strings.TrimSpace(a.Airline),
			}
			if a.DepartureDay != "" {
				day, err := parseDay(a.DepartureDay)
				if err != nil {
					return nil, argErrorf("departure_day %q is not a date in YYYY-MM-DD format.", a.DepartureDay)
				}
				q.DepartureDay = &day
			}
			return store.SearchFlights(ctx, q)
		})
	book := MustFunc(BookFlight,
		"Book a flight by its ID for the current user. Confirm with the user before booking.",
		func(ctx context.Context, caller string, a bookFlightArgs) (any, error) {
			if a.FlightID == "" {
				return nil, argErrorf("flight_id is required.")
			}
			return outcome(store.BookFlight(ctx, caller, a.FlightID))
		})
	return []agent.Tool{search, book}
}

// ShuttleTools returns search_shuttles and book_shuttle over store.
func ShuttleTools(store booking.Store) []agent.Tool {
	search := MustFunc(SearchShuttles,
		"Search airport shuttles by pickup airport, destination or pickup time. Omitted fields match any shuttle.",
		func(ctx context.Context, _ string, a searchShuttlesArgs) (any, error) {
			q := booking.ShuttleQuery{
				FromAirport: strings.TrimSpace(a.FromAirport),
				To:          strings.TrimSpace(a.To),
			}
			if a.PickupDatetime != "" {
				t, err := time.Parse(time.RFC3339, a.PickupDatetime)
				if err != nil {
					return nil, argErrorf("pickup_datetime %q is not an RFC3339 time.", a.PickupDatetime)
				}
				q.PickupDatetime = &t
			}
			return store.SearchShuttles(ctx, q)
		})
	book := MustFunc(BookShuttle,
		"Book an airport shuttle by its ID for the current user. Confirm with the user before booking.",
		func(ctx context.Context, caller string, a bookShuttleArgs) (any, error) {
			if a.ShuttleID == "" {
				return nil, argErrorf("shuttle_id is required.")
			}
			return outcome(store.BookShuttle(ctx, caller, a.ShuttleID))
		})
	return []agent.Tool{search, book}
}

// HotelTools returns search_hotels and book_hotel over store.
func HotelTools(store booking.Store) []agent.Tool {
	search := MustFunc(SearchHotels,
		"Search hotels by location, name, price tier, check-in or check-out date. Omitted fields match any hotel.",
		func(ctx context.Context, _ string, a searchHotelsArgs) (any, error) {
			for _, d := range [][2]string{{"checkin_date", a.CheckinDate}, {"checkout_date", a.CheckoutDate}} {
				if d[1] == "" {
					continue
				}
				if _, err := time.Parse(time.DateOnly, d[1]); err != nil {
					return nil, argErrorf("%s %q is not a date in YYYY-MM-DD format.", d[0], d[1])
				}
			}
			return store.SearchHotels(ctx, booking.HotelQuery{
				Location:     strings.TrimSpace(a.Location),
				Name:         strings.TrimSpace(a.Name),
				PriceTier:    strings.TrimSpace(a.PriceTier),
				CheckinDate:  a.CheckinDate,
				CheckoutDate: a.CheckoutDate,
			})
		})
	book := MustFunc(BookHotel,
		"Book a hotel by its ID for the current user. Confirm with the user before booking.",
		func(ctx context.Context, caller string, a bookHotelArgs) (any, error) {
			if a.HotelID == "" {
				return nil, argErrorf("hotel_id is required.")
			}
			return outcome(store.BookHotel(ctx, caller, a.HotelID))
		})
	return []agent.Tool{search, book}
}

// SearchToursTool returns search_tours over store.
func SearchToursTool(store booking.Store) agent.Tool {
	return MustFunc(SearchTours,
		"Search guided tours by destination or length in days. Omitted fields match any tour.",
		func(ctx context.Context, _ string, a searchToursArgs) (any, error) {
			if a.DurationDays < 0 {
				return nil, argErrorf("duration_days must be positive.")
			}
			return store.SearchTours(ctx, booking.TourQuery{
				Destination:  strings.TrimSpace(a.Destination),
				DurationDays: a.DurationDays,
			})
		})
}

func outcome(o booking.Outcome, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return o.Message, nil
}

// parseDay accepts a date or a full timestamp and returns its UTC day.
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
