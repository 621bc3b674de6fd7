// Package travel assembles the travel-desk agents: the primary assistant
// and the flight, shuttle, hotel and tour specialists.
package travel

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/booking"
	"github.com/soyeahso/tripdesk/internal/dialog"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/tools"
)

// Specialist ids.
const (
	Flight  dialog.AgentID = "flight"
	Shuttle dialog.AgentID = "shuttle"
	Hotel   dialog.AgentID = "hotel"
	Tour    dialog.AgentID = "tour"
)

// Transfer tool names offered to the primary assistant.
const (
	ToFlightBookingAssistant = "ToFlightBookingAssistant"
	ToBookAirportShuttle     = "ToBookAirportShuttle"
	ToHotelBookingAssistant  = "ToHotelBookingAssistant"
	ToTourBookingAssistant   = "ToTourBookingAssistant"
)

// Deps are the backends the agents' tools run against.
type Deps struct {
	Bookings     booking.Store
	Memories     tools.Memories
	Destinations tools.Destinations
}

type transferRequest struct {
	Request string `json:"request" jsonschema:"Any necessary followup questions the specialized assistant should clarify before proceeding"`
}

type shuttleTransfer struct {
	FromAirport    string `json:"from_airport" jsonschema:"The airport where the user wants to be picked up, e.g. SGN"`
	To             string `json:"to" jsonschema:"The destination after leaving the airport, e.g. Quận 1"`
	PickupDatetime string `json:"pickup_datetime" jsonschema:"The exact date and time for the pickup in RFC3339 format"`
	Request        string `json:"request" jsonschema:"Any additional requests, such as a child seat or extra luggage space"`
}

// NewGraph wires the primary assistant and the four specialists.
func NewGraph(d Deps) (*dialog.Graph, error) {
	if d.Bookings == nil || d.Memories == nil || d.Destinations == nil {
		return nil, fmt.Errorf("travel: bookings, memories and destinations are required")
	}

	primary := &agent.Definition{
		ID:     "primary",
		Name:   "Primary Assistant",
		Prompt: agent.NewPrompt("primary", primaryPrompt),
		Tools:  agent.NewToolRegistry(tools.MemoryTools(d.Memories)...),
	}

	type spec struct {
		id       dialog.AgentID
		name     string
		prompt   string
		tools    []agent.Tool
		transfer string
		desc     string
		schema   func() (string, error)
	}
	specs := []spec{
		{
			id: Flight, name: "Flight Searching & Booking Assistant", prompt: flightPrompt,
			tools:    tools.FlightTools(d.Bookings),
			transfer: ToFlightBookingAssistant,
			desc:     "Transfers work to a specialized assistant to handle flight searching and booking.",
			schema:   schemaFor[transferRequest],
		},
		{
			id: Shuttle, name: "Shuttle Assistant", prompt: shuttlePrompt,
			tools:    tools.ShuttleTools(d.Bookings),
			transfer: ToBookAirportShuttle,
			desc:     "Handles airport shuttle booking requests.",
			schema:   schemaFor[shuttleTransfer],
		},
		{
			id: Hotel, name: "Hotel Booking Assistant", prompt: hotelPrompt,
			tools:    tools.HotelTools(d.Bookings),
			transfer: ToHotelBookingAssistant,
			desc:     "Transfers work to a specialized assistant to handle hotel searching and booking.",
			schema:   schemaFor[transferRequest],
		},
		{
			id: Tour, name: "Tour Assistant", prompt: tourPrompt,
			tools:    []agent.Tool{tools.SearchToursTool(d.Bookings), tools.LookupDestinationsTool(d.Destinations)},
			transfer: ToTourBookingAssistant,
			desc:     "Transfers work to a specialized assistant to recommend destinations and find guided tours.",
			schema:   schemaFor[transferRequest],
		},
	}

	specialists := make([]dialog.Specialist, 0, len(specs))
	for _, s := range specs {
		schema, err := s.schema()
		if err != nil {
			return nil, fmt.Errorf("travel: %s schema: %w", s.transfer, err)
		}
		specialists = append(specialists, dialog.Specialist{
			Agent: &agent.Definition{
				ID:     string(s.id),
				Name:   s.name,
				Prompt: agent.NewPrompt(string(s.id), s.prompt),
				Tools:  agent.NewToolRegistry(s.tools...),
			},
			Transfer: llm.ToolDefinition{Name: s.transfer, Description: s.desc, InputSchema: schema},
		})
	}
	return dialog.NewGraph(primary, specialists...)
}

func schemaFor[T any]() (string, error) {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
