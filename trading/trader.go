package trading

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/mcrae/pubsub/agent"
	"github.com/mcrae/pubsub/pubsub"
)

const (
	// MarketBasket is the number of distinct stocks in the market.
	MarketBasket = 5
	// MaxShares is the most shares of one stock a seller starts with.
	MaxShares = 10
	// BuyerMoney is a buyer's starting money.
	BuyerMoney = 3000.00
	// SellerMoney is a seller's starting money.
	SellerMoney = 1000.00
)

// Offer is a priced claim on one share of a stock. The publisher holds
// it as a token under the offer's event id; the first counterparty to
// claim the token settles the trade.
type Offer struct {
	Price   float64
	StockID int
}

// Counterparty is the direct call between traders that settles an
// offer: a seller calls Buy on the buyer that published a buy offer,
// a buyer calls Sell on the seller that published a sell offer.
type Counterparty interface {
	Buy(eventID int) bool
	Sell(eventID int) bool
}

// trader is the state a buyer and a seller share: an agent connected to
// the market, holdings, and the outstanding offer tokens.
type trader struct {
	Agent  *agent.Agent
	market *Market

	mu        sync.Mutex
	money     float64
	portfolio [MarketBasket]int
	token     map[int]Offer
}

func newTrader(market *Market, money float64) (*trader, error) {
	ag, err := agent.New(market)
	if err != nil {
		return nil, errors.Wrap(err, "joining market")
	}
	return &trader{
		Agent:  ag,
		market: market,
		money:  money,
		token:  make(map[int]Offer),
	}, nil
}

// offer publishes an offer on the given topic and stores the token.
// Keywords carry the trader id, stock id and price so counterparties
// can settle without parsing the content.
func (t *trader) offer(topic *pubsub.Topic, verb string, stockID int, price float64) (int, error) {
	if stockID < 0 || stockID >= MarketBasket {
		return 0, errors.Errorf("no such stock %d", stockID)
	}
	title := fmt.Sprintf("%s Stock %d", verb, stockID)
	content := fmt.Sprintf("Trader_%d offers to %s Stock %d at %.2f",
		t.Agent.ID(), verb, stockID, price)
	ev := pubsub.NewEvent(topic, title, content,
		strconv.Itoa(t.Agent.ID()),
		strconv.Itoa(stockID),
		strconv.FormatFloat(price, 'f', 2, 64))
	id := t.Agent.PublishWait(ev)
	if id == 0 {
		return 0, errors.New("offer rejected by broker")
	}
	t.mu.Lock()
	t.token[id] = Offer{Price: price, StockID: stockID}
	t.mu.Unlock()
	return id, nil
}

// claim removes the token for an offer. Only the first caller gets it.
func (t *trader) claim(eventID int) (Offer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	offer, ok := t.token[eventID]
	if ok {
		delete(t.token, eventID)
	}
	return offer, ok
}

// Portfolio returns the trader's money and share counts.
func (t *trader) Portfolio() (float64, [MarketBasket]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.money, t.portfolio
}

// SubscribeStock follows every offer on one stock, whichever side.
func (t *trader) SubscribeStock(stockID int) {
	t.Agent.SubscribeKeyword(strconv.Itoa(stockID)).Wait()
}

// Offers returns the events delivered to this trader so far.
func (t *trader) Offers() []*pubsub.Event {
	return t.Agent.Received()
}

// ParseOffer unpacks the trader id, stock id and price keywords of an
// offer event.
func ParseOffer(ev *pubsub.Event) (traderID, stockID int, price float64, err error) {
	if len(ev.Keywords) < 3 {
		return 0, 0, 0, errors.Errorf("event %d is not an offer", ev.ID)
	}
	if traderID, err = strconv.Atoi(ev.Keywords[0]); err != nil {
		return 0, 0, 0, errors.Wrap(err, "trader id keyword")
	}
	if stockID, err = strconv.Atoi(ev.Keywords[1]); err != nil {
		return 0, 0, 0, errors.Wrap(err, "stock id keyword")
	}
	if price, err = strconv.ParseFloat(ev.Keywords[2], 64); err != nil {
		return 0, 0, 0, errors.Wrap(err, "price keyword")
	}
	return traderID, stockID, price, nil
}

// Quit leaves the market for good.
func (t *trader) Quit() error {
	return t.Agent.Quit()
}

// Buyer publishes offers to buy and responds to offers to sell. It
// starts with money only.
type Buyer struct {
	*trader
}

func NewBuyer(market *Market) (*Buyer, error) {
	t, err := newTrader(market, BuyerMoney)
	if err != nil {
		return nil, err
	}
	return &Buyer{t}, nil
}

// SubscribeSells follows every offer to sell on the market.
func (b *Buyer) SubscribeSells() {
	b.Agent.Subscribe(b.market.Sells).Wait()
}

// OfferToBuy publishes an offer and holds its token for the first
// seller to claim.
func (b *Buyer) OfferToBuy(stockID int, price float64) (int, error) {
	return b.offer(b.market.Buys, "Buy", stockID, price)
}

// Buy hands the token for a buy offer to the calling seller. The first
// seller gets it; the buyer pays and takes the share.
func (b *Buyer) Buy(eventID int) bool {
	offer, ok := b.claim(eventID)
	if !ok {
		return false
	}
	b.mu.Lock()
	b.money -= offer.Price
	b.portfolio[offer.StockID]++
	b.mu.Unlock()
	return true
}

// Sell is a placeholder: buyers publish no sell offers.
func (b *Buyer) Sell(eventID int) bool {
	return false
}

// AcceptSellOffer settles a received sell offer against its seller. On
// success the buyer pays the offered price and takes the share.
func (b *Buyer) AcceptSellOffer(ev *pubsub.Event, seller Counterparty) (bool, error) {
	_, stockID, price, err := ParseOffer(ev)
	if err != nil {
		return false, err
	}
	if !seller.Sell(ev.ID) {
		return false, nil
	}
	b.mu.Lock()
	b.money -= price
	b.portfolio[stockID]++
	b.mu.Unlock()
	return true, nil
}

// Seller publishes offers to sell and responds to offers to buy. It
// starts with a random portfolio of shares.
type Seller struct {
	*trader
}

func NewSeller(market *Market) (*Seller, error) {
	t, err := newTrader(market, SellerMoney)
	if err != nil {
		return nil, err
	}
	for i := range t.portfolio {
		t.portfolio[i] = rand.Intn(MaxShares)
	}
	return &Seller{t}, nil
}

// SubscribeBuys follows every offer to buy on the market.
func (s *Seller) SubscribeBuys() {
	s.Agent.Subscribe(s.market.Buys).Wait()
}

// OfferToSell publishes an offer and holds its token for the first
// buyer to claim.
func (s *Seller) OfferToSell(stockID int, price float64) (int, error) {
	return s.offer(s.market.Sells, "Sell", stockID, price)
}

// Sell hands the token for a sell offer to the calling buyer. The first
// buyer gets it; the seller is paid and gives up the share.
func (s *Seller) Sell(eventID int) bool {
	offer, ok := s.claim(eventID)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.money += offer.Price
	s.portfolio[offer.StockID]--
	s.mu.Unlock()
	return true
}

// Buy is a placeholder: sellers publish no buy offers.
func (s *Seller) Buy(eventID int) bool {
	return false
}

// AcceptBuyOffer settles a received buy offer against its buyer. On
// success the seller is paid the offered price and gives up the share.
func (s *Seller) AcceptBuyOffer(ev *pubsub.Event, buyer Counterparty) (bool, error) {
	_, stockID, price, err := ParseOffer(ev)
	if err != nil {
		return false, err
	}
	if !buyer.Buy(ev.ID) {
		return false, nil
	}
	s.mu.Lock()
	s.money += price
	s.portfolio[stockID]--
	s.mu.Unlock()
	return true, nil
}
