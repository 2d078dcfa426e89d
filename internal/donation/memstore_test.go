package donation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
	"github.com/lalithlochan/bloodlink/internal/notify"
)

var baseTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// memStore keeps the workflow's tables in memory. Ledger transactions are
// serialized and roll back on error, and every write keeps the same
// compare-and-set predicate as its SQL counterpart.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users          map[int64]*db.User
	usernames      map[int64]string
	passwords      map[int64]string
	constituencies map[string]*db.Constituency
	hospitals      []*db.Hospital
	requests       map[int64]*db.BloodRequest
	offers         []*db.Offer
	nextID         int64

	failStatusUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[int64]*db.User{},
		usernames: map[int64]string{},
		passwords: map[int64]string{},
		constituencies: map[string]*db.Constituency{
			"Westlands": {ID: 1, Name: "Westlands", Latitude: -1.2676, Longitude: 36.8108},
			"Kibra":     {ID: 2, Name: "Kibra", Latitude: -1.3133, Longitude: 36.7876},
		},
		hospitals: []*db.Hospital{
			{ID: 1, Name: "Aga Khan Hospital", Constituency: "Westlands", Latitude: -1.2629, Longitude: 36.8125},
		},
		requests: map[int64]*db.BloodRequest{},
		nextID:   100,
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addUser(u *db.User) *db.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return u
}

func (m *memStore) addRequest(r *db.BloodRequest) *db.BloodRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.RequestedAt.IsZero() {
		r.RequestedAt = baseTime.Add(time.Duration(r.ID) * time.Minute)
	}
	m.requests[r.ID] = r
	return r
}

func (m *memStore) request(id int64) db.BloodRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

func (m *memStore) offersFor(requestID int64) []db.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Offer
	for _, o := range m.offers {
		if o.RequestID == requestID {
			out = append(out, *o)
		}
	}
	return out
}

func (m *memStore) FindUserByID(_ context.Context, id int64) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) FindDonors(_ context.Context, bloodType, location string) ([]*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*db.User, 0)
	for _, u := range m.users {
		if u.Usertype == db.UserTypeDonor && u.Bloodtype == bloodType && u.Location == location && u.Latitude != nil && u.Longitude != nil {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateUserFields(_ context.Context, id int64, upd db.UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return db.ErrNotFound
	}
	if upd.Fullname != nil {
		u.Fullname = *upd.Fullname
	}
	if upd.Phone != nil {
		u.Phone = upd.Phone
	}
	if upd.Availability != nil {
		u.Availability = *upd.Availability
	}
	if upd.Location != nil {
		u.Location = *upd.Location
		u.Latitude = upd.Latitude
		u.Longitude = upd.Longitude
	}
	return nil
}

// CreateUser enforces the same unique columns as the users table.
func (m *memStore) CreateUser(_ context.Context, nu *db.NewUser) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if m.usernames[id] == nu.Username || u.Email == nu.Email ||
			(nu.Phone != nil && u.Phone != nil && *u.Phone == *nu.Phone) {
			return nil, db.ErrDuplicate
		}
	}
	lat, lng := nu.Latitude, nu.Longitude
	u := &db.User{
		ID: m.id(), Fullname: nu.Fullname, Email: nu.Email, Phone: nu.Phone, Usertype: nu.Usertype,
		Bloodtype: nu.Bloodtype, Location: nu.Location, Latitude: &lat, Longitude: &lng,
		Availability: true, CreatedAt: baseTime,
	}
	m.users[u.ID] = u
	m.usernames[u.ID] = nu.Username
	m.passwords[u.ID] = nu.PasswordHash
	cp := *u
	return &cp, nil
}

func (m *memStore) FindCredentials(_ context.Context, email string) (*db.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Email == email {
			return &db.Credentials{User: *u, PasswordHash: m.passwords[id]}, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) FindConstituency(_ context.Context, name string) (*db.Constituency, error) {
	c, ok := m.constituencies[name]
	if !ok {
		return nil, db.ErrNotFound
	}
	return c, nil
}

func (m *memStore) FindHospital(_ context.Context, constituency, name string) (*db.Hospital, error) {
	for _, h := range m.hospitals {
		if h.Constituency == constituency && h.Name == name {
			return h, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) CreateRequest(_ context.Context, req *db.BloodRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = m.id()
	req.Status = lifecycle.StatusActive
	req.RequestedAt = baseTime.Add(time.Duration(req.ID) * time.Minute)
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memStore) latest(recipientID int64, statuses []lifecycle.Status) (*db.BloodRequest, error) {
	var best *db.BloodRequest
	for _, r := range m.requests {
		if r.RecipientID != recipientID || !statusIn(r.Status, statuses) {
			continue
		}
		if best == nil || r.RequestedAt.After(best.RequestedAt) ||
			(r.RequestedAt.Equal(best.RequestedAt) && r.ID > best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil, db.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func statusIn(s lifecycle.Status, set []lifecycle.Status) bool {
	if len(set) == 0 {
		return true
	}
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func (m *memStore) LatestRequest(_ context.Context, recipientID int64, statuses ...lifecycle.Status) (*db.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(recipientID, statuses)
}

func (m *memStore) LatestRequestWithRecipient(_ context.Context, recipientID int64, statuses ...lifecycle.Status) (*db.RequestWithRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.latest(recipientID, statuses)
	if err != nil {
		return nil, err
	}
	out := &db.RequestWithRecipient{BloodRequest: *r}
	if u, ok := m.users[recipientID]; ok {
		out.RecipientName = u.Fullname
	}
	return out, nil
}

func (m *memStore) CountRequests(_ context.Context, recipientID int64, status lifecycle.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.RecipientID == recipientID && r.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memStore) RejectedDonorIDs(_ context.Context, requestID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0)
	for _, o := range m.offers {
		if o.RequestID == requestID && o.Response == lifecycle.ResponseRejected {
			ids = append(ids, o.DonorID)
		}
	}
	return ids, nil
}

func (m *memStore) DonorInbox(_ context.Context, donorID int64) ([]*db.DonorInboxItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*db.DonorInboxItem, 0)
	for i := len(m.offers) - 1; i >= 0; i-- {
		o := m.offers[i]
		if o.DonorID != donorID {
			continue
		}
		r := m.requests[o.RequestID]
		out = append(out, &db.DonorInboxItem{
			OfferID:       o.ID,
			RequestID:     r.ID,
			Response:      o.Response,
			HospitalName:  o.HospitalName,
			BloodType:     r.BloodType,
			Location:      r.Location,
			RequestStatus: r.Status,
			RecipientName: m.users[r.RecipientID].Fullname,
		})
	}
	return out, nil
}

func (m *memStore) DonorMatch(_ context.Context, donorID int64) (*db.DonorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.offers) - 1; i >= 0; i-- {
		o := m.offers[i]
		if o.DonorID != donorID || o.Response != lifecycle.ResponseAccepted {
			continue
		}
		r := m.requests[o.RequestID]
		if r.Status == lifecycle.StatusMatched {
			return &db.DonorMatch{RequestID: r.ID, Location: r.Location, DateNeeded: r.DateNeeded}, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) WithinLedger(ctx context.Context, fn func(db.Ledger) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	savedRequests := make(map[int64]db.BloodRequest, len(m.requests))
	for id, r := range m.requests {
		savedRequests[id] = *r
	}
	savedOffers := make([]db.Offer, len(m.offers))
	for i, o := range m.offers {
		savedOffers[i] = *o
	}
	m.mu.Unlock()

	if err := fn(&memLedger{m: m}); err != nil {
		m.mu.Lock()
		m.requests = make(map[int64]*db.BloodRequest, len(savedRequests))
		for id, r := range savedRequests {
			r := r
			m.requests[id] = &r
		}
		m.offers = make([]*db.Offer, len(savedOffers))
		for i := range savedOffers {
			m.offers[i] = &savedOffers[i]
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

type memLedger struct {
	m *memStore
}

func (l *memLedger) LockRequest(_ context.Context, id int64) (*db.BloodRequest, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	r, ok := l.m.requests[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *memLedger) LockLatestRequest(_ context.Context, recipientID int64, statuses []lifecycle.Status) (*db.BloodRequest, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return l.m.latest(recipientID, statuses)
}

func (l *memLedger) InsertOffer(_ context.Context, offer *db.Offer) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for _, o := range l.m.offers {
		if o.DonorID == offer.DonorID && o.RequestID == offer.RequestID {
			return db.ErrDuplicate
		}
	}
	offer.ID = l.m.id()
	offer.Response = lifecycle.ResponsePending
	offer.CreatedAt = baseTime
	cp := *offer
	l.m.offers = append(l.m.offers, &cp)
	return nil
}

func (l *memLedger) AcceptedDonor(_ context.Context, requestID int64) (int64, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for _, o := range l.m.offers {
		if o.RequestID == requestID && o.Response == lifecycle.ResponseAccepted {
			return o.DonorID, nil
		}
	}
	return 0, db.ErrNotFound
}

func (l *memLedger) SetOfferResponse(_ context.Context, donorID, requestID int64, resp lifecycle.Response) (bool, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for _, o := range l.m.offers {
		if o.DonorID == donorID && o.RequestID == requestID && o.Response == lifecycle.ResponsePending {
			o.Response = resp
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) UpdateRequestStatus(_ context.Context, id int64, tr lifecycle.Transition) (bool, error) {
	if l.m.failStatusUpdate != nil {
		return false, l.m.failStatusUpdate
	}
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	r, ok := l.m.requests[id]
	if !ok || !tr.Allows(r.Status) {
		return false, nil
	}
	r.Status = tr.To
	now := baseTime.Add(time.Hour)
	switch tr.Stamp {
	case lifecycle.StampMatched:
		r.MatchedAt = &now
	case lifecycle.StampCompleted:
		r.CompletedAt = &now
	}
	return true, nil
}

// recordingNotifier captures post-commit side effects.
type recordingNotifier struct {
	mu          sync.Mutex
	offers      []notify.Offer
	responses   []notify.Response
	transitions [][2]lifecycle.Status
}

func (n *recordingNotifier) OfferSent(_ context.Context, o notify.Offer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offers = append(n.offers, o)
}

func (n *recordingNotifier) OfferResponded(_ context.Context, r notify.Response) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses = append(n.responses, r)
}

func (n *recordingNotifier) RequestTransitioned(_ context.Context, _, _ int64, from, to lifecycle.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, [2]lifecycle.Status{from, to})
}
