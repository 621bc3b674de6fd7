package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/soyeahso/tripdesk/internal/domain"
	"github.com/soyeahso/tripdesk/internal/logging"
)

const (
	colFlights         = "flights"
	colShuttles        = "airport_shuttles"
	colHotels          = "hotels"
	colTours           = "tours"
	colUsers           = "users"
	colBookings        = "bookings"
	colShuttleBookings = "shuttle_bookings"
	colHotelBookings   = "hotel_bookings"

	mongoCloseTimeout = 5 * time.Second
)

// MongoStore is a Store backed by MongoDB. Balance debits and hotel
// availability flips are single conditional updates, so concurrent bookings
// of the same resource cannot both succeed. The booking insert follows; if
// it fails, the debit or flip is reverted.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
	log    *logging.Logger
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string, log *logging.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("booking: mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("booking: mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return &MongoStore{
		client: client,
		db:     client.Database(database),
		now:    time.Now,
		log:    log.Sub("booking.mongo"),
	}, nil
}

// idFilter matches a document id given either as an ObjectID hex string or
// as a plain string id.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

// refValue is the stored form of a reference to another document.
func refValue(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func flightFilter(q FlightQuery) bson.M {
	f := bson.M{}
	if q.DepartureAirport != "" {
		f["departure_airport"] = q.DepartureAirport
	}
	if q.ArrivalAirport != "" {
		f["arrival_airport"] = q.ArrivalAirport
	}
	if q.Airline != "" {
		f["airline"] = q.Airline
	}
	if q.DepartureDay != nil {
		f["$expr"] = bson.M{"$eq": bson.A{
			bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$departure_time"}},
			q.DepartureDay.UTC().Format(time.DateOnly),
		}}
	}
	return f
}

func shuttleFilter(q ShuttleQuery) bson.M {
	f := bson.M{}
	if q.FromAirport != "" {
		f["from_airport"] = q.FromAirport
	}
	if q.To != "" {
		f["to"] = q.To
	}
	if q.PickupDatetime != nil {
		f["pickup_datetime"] = q.PickupDatetime.UTC()
	}
	return f
}

func hotelFilter(q HotelQuery) bson.M {
	f := bson.M{}
	for field, v := range map[string]string{
		"location":      q.Location,
		"name":          q.Name,
		"price_tier":    q.PriceTier,
		"checkin_date":  q.CheckinDate,
		"checkout_date": q.CheckoutDate,
	} {
		if v != "" {
			f[field] = v
		}
	}
	return f
}

func tourFilter(q TourQuery) bson.M {
	f := bson.M{}
	if q.Destination != "" {
		f["destination"] = q.Destination
	}
	if q.DurationDays != 0 {
		f["duration_days"] = q.DurationDays
	}
	return f
}

func find[T any](ctx context.Context, c *mongo.Collection, filter bson.M) ([]T, error) {
	cur, err := c.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.Name(), err)
	}
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.Name(), err)
	}
	return out, nil
}

func (s *MongoStore) SearchFlights(ctx context.Context, q FlightQuery) ([]domain.Flight, error) {
	return find[domain.Flight](ctx, s.db.Collection(colFlights), flightFilter(q))
}

func (s *MongoStore) SearchShuttles(ctx context.Context, q ShuttleQuery) ([]domain.Shuttle, error) {
	return find[domain.Shuttle](ctx, s.db.Collection(colShuttles), shuttleFilter(q))
}

func (s *MongoStore) SearchHotels(ctx context.Context, q HotelQuery) ([]domain.Hotel, error) {
	return find[domain.Hotel](ctx, s.db.Collection(colHotels), hotelFilter(q))
}

func (s *MongoStore) SearchTours(ctx context.Context, q TourQuery) ([]domain.Tour, error) {
	return find[domain.Tour](ctx, s.db.Collection(colTours), tourFilter(q))
}

func (s *MongoStore) BookFlight(ctx context.Context, userID, flightID string) (Outcome, error) {
	price, ok, err := s.price(ctx, colFlights, flightID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return failed(notFound("Flight", flightID)), nil
	}
	return s.debitAndRecord(ctx, userID, flightID, domain.BookingFlight, price)
}

func (s *MongoStore) BookShuttle(ctx context.Context, userID, shuttleID string) (Outcome, error) {
	price, ok, err := s.price(ctx, colShuttles, shuttleID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return failed(notFound("Shuttle", shuttleID)), nil
	}
	return s.debitAndRecord(ctx, userID, shuttleID, domain.BookingShuttle, price)
}

func (s *MongoStore) price(ctx context.Context, col, id string) (float64, bool, error) {
	var doc struct {
		Price float64 `bson:"price"`
	}
	opts := options.FindOne().SetProjection(bson.M{"price": 1})
	err := s.db.Collection(col).FindOne(ctx, idFilter(id), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("loading %s %s: %w", col, id, err)
	}
	return doc.Price, true, nil
}

func (s *MongoStore) userExists(ctx context.Context, id string) (bool, error) {
	n, err := s.db.Collection(colUsers).CountDocuments(ctx, idFilter(id))
	if err != nil {
		return false, fmt.Errorf("loading user %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *MongoStore) debitAndRecord(ctx context.Context, userID, resourceID string, kind domain.BookingKind, price float64) (Outcome, error) {
	users := s.db.Collection(colUsers)
	filter := idFilter(userID)
	filter["balance"] = bson.M{"$gte": price}

	res, err := users.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"balance": -price}})
	if err != nil {
		return Outcome{}, fmt.Errorf("debiting user %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		exists, err := s.userExists(ctx, userID)
		if err != nil {
			return Outcome{}, err
		}
		if !exists {
			return failed(notFound("User", userID)), nil
		}
		return failed(MsgInsufficientBalance), nil
	}

	b, err := s.insertBooking(ctx, kind, userID, resourceID)
	if err != nil {
		s.revert(ctx, colUsers, idFilter(userID), bson.M{"$inc": bson.M{"balance": price}}, err)
		return Outcome{}, err
	}
	return confirmed(b), nil
}

func (s *MongoStore) BookHotel(ctx context.Context, userID, hotelID string) (Outcome, error) {
	hotels := s.db.Collection(colHotels)
	n, err := hotels.CountDocuments(ctx, idFilter(hotelID))
	if err != nil {
		return Outcome{}, fmt.Errorf("loading hotel %s: %w", hotelID, err)
	}
	if n == 0 {
		return failed(notFound("Hotel", hotelID)), nil
	}
	exists, err := s.userExists(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	if !exists {
		return failed(notFound("User", userID)), nil
	}

	filter := idFilter(hotelID)
	filter["booked"] = 0
	res, err := hotels.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"booked": 1}})
	if err != nil {
		return Outcome{}, fmt.Errorf("reserving hotel %s: %w", hotelID, err)
	}
	if res.MatchedCount == 0 {
		return failed(MsgHotelBooked), nil
	}

	b, err := s.insertBooking(ctx, domain.BookingHotel, userID, hotelID)
	if err != nil {
		s.revert(ctx, colHotels, idFilter(hotelID), bson.M{"$set": bson.M{"booked": 0}}, err)
		return Outcome{}, err
	}
	return confirmed(b), nil
}

// revert undoes a debit or availability flip after a failed booking insert.
func (s *MongoStore) revert(ctx context.Context, col string, filter, update bson.M, cause error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mongoCloseTimeout)
	defer cancel()
	if _, err := s.db.Collection(col).UpdateOne(rctx, filter, update); err != nil {
		s.log.Error().
			Err(err).
			AnErr("cause", cause).
			Str("collection", col).
			Interface("filter", filter).
			Msg("failed to revert booking mutation")
	}
}

func bookingTarget(kind domain.BookingKind) (collection, field string) {
	switch kind {
	case domain.BookingShuttle:
		return colShuttleBookings, "shuttle_id"
	case domain.BookingHotel:
		return colHotelBookings, "hotel_id"
	default:
		return colBookings, "flight_id"
	}
}

func (s *MongoStore) insertBooking(ctx context.Context, kind domain.BookingKind, userID, resourceID string) (*domain.Booking, error) {
	col, field := bookingTarget(kind)
	now := s.now().UTC()
	res, err := s.db.Collection(col).InsertOne(ctx, bson.M{
		"user_id":      refValue(userID),
		field:          refValue(resourceID),
		"booking_time": now,
		"status":       StatusConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("recording %s booking: %w", kind, err)
	}
	b := &domain.Booking{
		UserID:      userID,
		ResourceID:  resourceID,
		Kind:        kind,
		BookingTime: now,
		Status:      StatusConfirmed,
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		b.ID = oid.Hex()
	}
	return b, nil
}

type bookingDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	FlightID    string    `bson:"flight_id,omitempty"`
	ShuttleID   string    `bson:"shuttle_id,omitempty"`
	HotelID     string    `bson:"hotel_id,omitempty"`
	BookingTime time.Time `bson:"booking_time"`
	Status      string    `bson:"status"`
}

func (s *MongoStore) Bookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, kind := range []domain.BookingKind{domain.BookingFlight, domain.BookingShuttle, domain.BookingHotel} {
		col, _ := bookingTarget(kind)
		filter := bson.M{"user_id": bson.M{"$in": bson.A{refValue(userID), userID}}}
		docs, err := find[bookingDoc](ctx, s.db.Collection(col), filter)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			out = append(out, domain.Booking{
				ID:          d.ID,
				UserID:      d.UserID,
				ResourceID:  d.FlightID + d.ShuttleID + d.HotelID,
				Kind:        kind,
				BookingTime: d.BookingTime,
				Status:      d.Status,
			})
		}
	}
	return out, nil
}

func (s *MongoStore) User(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := s.db.Collection(colUsers).FindOne(ctx, idFilter(id)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", id, err)
	}
	return &u, nil
}

func (s *MongoStore) Seed(ctx context.Context, d Dataset) error {
	docs := map[string][]any{}
	for _, f := range d.Flights {
		docs[colFlights] = append(docs[colFlights], f)
	}
	for _, sh := range d.Shuttles {
		docs[colShuttles] = append(docs[colShuttles], sh)
	}
	for _, h := range d.Hotels {
		docs[colHotels] = append(docs[colHotels], h)
	}
	for _, t := range d.Tours {
		docs[colTours] = append(docs[colTours], t)
	}
	for _, u := range d.Users {
		docs[colUsers] = append(docs[colUsers], u)
	}

	for col, items := range docs {
		c := s.db.Collection(col)
		for _, item := range items {
			id := seedID(item)
			if id == "" {
				if _, err := c.InsertOne(ctx, item); err != nil {
					return fmt.Errorf("seeding %s: %w", col, err)
				}
				continue
			}
			opts := options.Replace().SetUpsert(true)
			if _, err := c.ReplaceOne(ctx, bson.M{"_id": id}, item, opts); err != nil {
				return fmt.Errorf("seeding %s %s: %w", col, id, err)
			}
		}
		s.log.Info().Str("collection", col).Int("count", len(items)).Msg("seeded")
	}
	return nil
}

func seedID(item any) string {
	switch v := item.(type) {
	case domain.Flight:
		return v.ID
	case domain.Shuttle:
		return v.ID
	case domain.Hotel:
		return v.ID
	case domain.Tour:
		return v.ID
	case domain.User:
		return v.ID
	}
	return ""
}

func (s *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
