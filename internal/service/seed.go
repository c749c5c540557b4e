package service

import (
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// DemoPassword is the password of every seeded customer.
const DemoPassword = "123456"

// demoState builds the demo dataset: three products, three customers and
// orders #006 to #008, with the order sequence continuing at 9.
func demoState(now time.Time, cost int, feed *ActivityFeed) (*domain.State, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
	if err != nil {
		return nil, err
	}
	ago := func(minutes int) time.Time { return now.Add(-time.Duration(minutes) * time.Minute) }

	st := domain.NewState()

	st.Customers = []domain.Customer{
		{
			ID: 1, Name: "Maria Oliveira", Username: "maria.oliveira", PasswordHash: string(hash),
			Email: "maria@email.com", Phone: "(11) 98888-1111",
			Address: domain.Address{
				PostalCode: "01001-000", Street: "Praça da Sé", Neighborhood: "Sé",
				City: "São Paulo", State: "SP", Number: "100",
			},
			NotificationPreference: domain.ChannelWebApp,
			Role:                   domain.RoleCustomer,
			CreatedAt:              ago(40),
		},
		{
			ID: 2, Name: "Pedro Santos", Username: "pedro.santos", PasswordHash: string(hash),
			Email: "pedro@email.com", Phone: "(11) 97777-2222",
			Address: domain.Address{
				PostalCode: "01310-000", Street: "Avenida Paulista", Neighborhood: "Bela Vista",
				City: "São Paulo", State: "SP", Number: "1578",
			},
			NotificationPreference: domain.ChannelWhatsApp,
			Role:                   domain.RoleCustomer,
			CreatedAt:              ago(35),
		},
		{
			ID: 3, Name: "Ana Silva", Username: "ana.silva", PasswordHash: string(hash),
			Email: "ana@email.com", Phone: "(11) 96666-3333",
			Address: domain.Address{
				PostalCode: "20040-020", Street: "Rua da Assembleia", Neighborhood: "Centro",
				City: "Rio de Janeiro", State: "RJ", Number: "50",
			},
			NotificationPreference: domain.ChannelWebApp,
			Role:                   domain.RoleCustomer,
			CreatedAt:              ago(30),
		},
	}

	bacon := domain.Product{
		ID: 1, Category: "Hambúrguer", Name: "X-Bacon",
		Price:       decimal.RequireFromString("25.90"),
		Description: "Hambúrguer, bacon crocante, queijo cheddar, alface e tomate",
	}
	special := domain.Product{
		ID: 2, Category: "Hambúrguer", Name: "X-Burger Especial",
		Price:       decimal.RequireFromString("32.90"),
		Description: "Hambúrguer artesanal 180g, queijo suíço, cebola caramelizada e molho",
	}
	salad := domain.Product{
		ID: 3, Category: "Hambúrguer", Name: "X-Salada",
		Price:       decimal.RequireFromString("22.90"),
		Description: "Hambúrguer, queijo, alface, tomate, cebola e maionese",
	}
	st.Products = []domain.Product{bacon, special, salad}

	line := func(p domain.Product, qty int) domain.LineItem {
		return domain.LineItem{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: qty}
	}
	st.Orders = []domain.Order{
		{
			ID: 8, DisplayCode: domain.DisplayCodeFor(8), CustomerID: 3,
			Items:  []domain.LineItem{line(special, 1), line(bacon, 1)},
			Status: domain.StatusDelivered, EtaMinutes: 0, CreatedAt: ago(5),
		},
		{
			ID: 7, DisplayCode: domain.DisplayCodeFor(7), CustomerID: 2,
			Items:  []domain.LineItem{line(bacon, 2)},
			Status: domain.StatusPreparing, EtaMinutes: 15, CreatedAt: ago(12),
		},
		{
			ID: 6, DisplayCode: domain.DisplayCodeFor(6), CustomerID: 1,
			Items:  []domain.LineItem{line(special, 2)},
			Status: domain.StatusPreparing, EtaMinutes: 25, CreatedAt: ago(20),
		},
	}

	st.Activities = []domain.Activity{
		{ID: feed.newID(), Type: domain.ActivityDone, Title: "Order #008 delivered", SubtitleBase: "Customer: Ana Silva", Timestamp: ago(5)},
		{ID: feed.newID(), Type: domain.ActivityPrep, Title: "Order #007 preparing", SubtitleBase: "Customer: Pedro Santos", Timestamp: ago(12)},
		{ID: feed.newID(), Type: domain.ActivityNew, Title: "New order #006", SubtitleBase: "Customer: Maria Oliveira", Timestamp: ago(20)},
	}

	st.Sequences = domain.Sequences{Product: 4, Customer: 4, Order: 9}
	st.Normalize()
	return st, nil
}
