package booking

import (
	"fmt"
	"time"

	"github.com/soyeahso/tripdesk/internal/domain"
)

// DemoUserID is the account the sample data funds for local use.
const DemoUserID = "demo"

// SampleData returns a small inventory anchored at the UTC day of base:
// flights between Hanoi, Ho Chi Minh City and Da Nang over the following
// week, shuttles from each airport, a few hotels and tours, and two users.
func SampleData(base time.Time) Dataset {
	day := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, time.UTC)

	routes := []struct {
		from, to, airline string
		hour              int
		price             float64
	}{
		{"HAN", "SGN", "Vietnam Airlines", 7, 120},
		{"HAN", "SGN", "VietJet Air", 13, 85},
		{"SGN", "HAN", "Bamboo Airways", 9, 110},
		{"HAN", "DAD", "Vietnam Airlines", 16, 70},
		{"DAD", "SGN", "VietJet Air", 11, 60},
	}

	var d Dataset
	for offset := 1; offset <= 7; offset++ {
		date := day.AddDate(0, 0, offset)
		for i, r := range routes {
			d.Flights = append(d.Flights, domain.Flight{
				ID:               fmt.Sprintf("FL-%s-%d", date.Format("0102"), i+1),
				DepartureAirport: r.from,
				ArrivalAirport:   r.to,
				Airline:          r.airline,
				DepartureTime:    date.Add(time.Duration(r.hour) * time.Hour),
				Price:            r.price,
			})
		}
	}

	shuttles := []struct {
		from, to string
		price    float64
	}{
		{"SGN", "Quận 1", 12},
		{"SGN", "Quận 7", 15},
		{"HAN", "Hoàn Kiếm", 14},
		{"DAD", "Sơn Trà", 9},
	}
	for offset := 1; offset <= 3; offset++ {
		date := day.AddDate(0, 0, offset)
		for i, s := range shuttles {
			d.Shuttles = append(d.Shuttles, domain.Shuttle{
				ID:             fmt.Sprintf("SH-%s-%d", date.Format("0102"), i+1),
				FromAirport:    s.from,
				To:             s.to,
				PickupDatetime: date.Add(10 * time.Hour),
				Price:          s.price,
			})
		}
	}

	checkin := day.AddDate(0, 0, 1).Format(time.DateOnly)
	checkout := day.AddDate(0, 0, 4).Format(time.DateOnly)
	hotels := []struct{ location, name, tier string }{
		{"Ho Chi Minh City", "Saigon Riverside", "Upscale"},
		{"Ho Chi Minh City", "District One Inn", "Midscale"},
		{"Hanoi", "Old Quarter Residence", "Midscale"},
		{"Hanoi", "Lakeview Grand", "Luxury"},
		{"Da Nang", "My Khe Beach Hotel", "Upper Midscale"},
	}
	for i, h := range hotels {
		d.Hotels = append(d.Hotels, domain.Hotel{
			ID:           fmt.Sprintf("HT-%d", i+1),
			Location:     h.location,
			Name:         h.name,
			PriceTier:    h.tier,
			CheckinDate:  checkin,
			CheckoutDate: checkout,
		})
	}

	tours := []struct {
		destination string
		days        int
	}{
		{"Ha Long Bay", 2},
		{"Hoi An", 1},
		{"Sa Pa", 3},
		{"Mekong Delta", 1},
		{"Phong Nha", 2},
	}
	for i, t := range tours {
		d.Tours = append(d.Tours, domain.Tour{
			ID:           fmt.Sprintf("TR-%d", i+1),
			Destination:  t.destination,
			DurationDays: t.days,
		})
	}

	d.Users = []domain.User{
		{ID: DemoUserID, Name: "Demo Traveller", Balance: 1000},
		{ID: "budget", Name: "Budget Traveller", Balance: 50},
	}
	return d
}
