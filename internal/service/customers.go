package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Customers
// ============================================================

// ListCustomers returns every customer without credential material.
func (s *Store) ListCustomers(ctx context.Context) []domain.CustomerView {
	var out []domain.CustomerView
	s.view(ctx, func(st *domain.State) {
		out = make([]domain.CustomerView, 0, len(st.Customers))
		for _, c := range st.Customers {
			out = append(out, c.View())
		}
	})
	return out
}

// FindCustomer returns a copy of the customer with id, or nil.
func (s *Store) FindCustomer(ctx context.Context, id int64) *domain.Customer {
	var found *domain.Customer
	s.view(ctx, func(st *domain.State) {
		if i := customerIndex(st, id); i >= 0 {
			c := st.Customers[i]
			found = &c
		}
	})
	return found
}

// FindCustomerByUsername matches the username case-insensitively.
func (s *Store) FindCustomerByUsername(ctx context.Context, username string) *domain.Customer {
	username = strings.TrimSpace(username)
	var found *domain.Customer
	s.view(ctx, func(st *domain.State) {
		for _, c := range st.Customers {
			if strings.EqualFold(c.Username, username) {
				found = &c
				return
			}
		}
	})
	return found
}

// SuggestUsername derives a free username from a full name.
func (s *Store) SuggestUsername(ctx context.Context, fullName string) string {
	var out string
	s.view(ctx, func(st *domain.State) {
		out = suggestUsername(fullName, func(candidate string) bool {
			return usernameTaken(st, candidate, 0)
		})
	})
	return out
}

// IsUsernameAvailable slugifies candidate and checks it against every customer.
func (s *Store) IsUsernameAvailable(ctx context.Context, candidate string) bool {
	slug := SlugifyUsername(candidate)
	if slug == "" {
		return false
	}
	available := false
	s.view(ctx, func(st *domain.State) {
		available = !usernameTaken(st, slug, 0)
	})
	return available
}

// CreateCustomer validates the input, resolves the username and stores a
// bcrypt hash of the password.
func (s *Store) CreateCustomer(ctx context.Context, in domain.CustomerInput) (*domain.CustomerView, error) {
	ctx, span := tracer.Start(ctx, "Store.CreateCustomer")
	defer span.End()

	in = normalizeCustomerInput(in)
	if err := s.checkStruct(in); err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("must have at least %d characters", minPasswordLength)}
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var created domain.Customer
	err = s.update(ctx, "create_customer", func(st *domain.State) (bool, error) {
		username, err := resolveUsername(st, in, 0)
		if err != nil {
			return false, err
		}
		created = domain.Customer{
			ID:                     st.Sequences.Customer,
			Name:                   in.Name,
			Username:               username,
			PasswordHash:           hash,
			Email:                  in.Email,
			Phone:                  in.Phone,
			Address:                in.Address,
			NotificationPreference: in.NotificationPreference,
			Role:                   in.Role,
			CreatedAt:              s.now(),
		}
		st.Sequences.Customer++
		st.Customers = append(st.Customers, created)
		st.Activities = s.feed.Append(st.Activities, domain.ActivityNew, "Customer registered", "Customer: "+created.Name)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrMutation("customer", "create")
	s.logger.Info("customer created", zap.Int64("customer_id", created.ID), zap.String("username", created.Username))
	view := created.View()
	return &view, nil
}

// UpdateCustomer edits a customer. A blank password keeps the stored hash.
// A missing id is a no-op and returns nil.
func (s *Store) UpdateCustomer(ctx context.Context, id int64, in domain.CustomerInput) (*domain.CustomerView, error) {
	in = normalizeCustomerInput(in)
	if err := s.checkStruct(in); err != nil {
		return nil, err
	}

	var hash string
	if in.Password != "" {
		if len(in.Password) < minPasswordLength {
			return nil, &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("must have at least %d characters", minPasswordLength)}
		}
		h, err := s.hashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	var updated *domain.Customer
	err := s.update(ctx, "update_customer", func(st *domain.State) (bool, error) {
		i := customerIndex(st, id)
		if i < 0 {
			return false, nil
		}
		if in.Username == "" {
			in.Username = st.Customers[i].Username
		}
		username, err := resolveUsername(st, in, id)
		if err != nil {
			return false, err
		}
		c := &st.Customers[i]
		c.Name = in.Name
		c.Username = username
		c.Email = in.Email
		c.Phone = in.Phone
		c.Address = in.Address
		c.NotificationPreference = in.NotificationPreference
		c.Role = in.Role
		if hash != "" {
			c.PasswordHash = hash
		}
		cp := *c
		updated = &cp
		st.Activities = s.feed.Append(st.Activities, domain.ActivityNew, "Customer updated", "Customer: "+c.Name)
		return true, nil
	})
	if err != nil || updated == nil {
		return nil, err
	}

	s.metrics.IncrMutation("customer", "update")
	view := updated.View()
	return &view, nil
}

// DeleteCustomer removes a customer unless an order still references them.
func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	removed := false
	err := s.update(ctx, "delete_customer", func(st *domain.State) (bool, error) {
		i := customerIndex(st, id)
		if i < 0 {
			return false, nil
		}
		for _, o := range st.Orders {
			if o.CustomerID == id {
				return false, &domain.ErrConstraint{
					Message: fmt.Sprintf("customer %d has orders and cannot be removed", id),
				}
			}
		}
		name := st.Customers[i].Name
		st.Customers = append(st.Customers[:i:i], st.Customers[i+1:]...)
		st.Activities = s.feed.Append(st.Activities, domain.ActivityNew, "Customer removed", "Customer: "+name)
		removed = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if removed {
		s.metrics.IncrMutation("customer", "delete")
		s.logger.Info("customer deleted", zap.Int64("customer_id", id))
	}
	return nil
}

// resolveUsername picks the requested username or derives one from the name,
// enforcing case-insensitive uniqueness against everyone except selfID.
func resolveUsername(st *domain.State, in domain.CustomerInput, selfID int64) (string, error) {
	if in.Username == "" {
		username := suggestUsername(in.Name, func(candidate string) bool {
			return usernameTaken(st, candidate, selfID)
		})
		if username == "" {
			return "", &domain.ErrValidation{Field: "username", Message: "cannot be derived from name"}
		}
		return username, nil
	}

	username := SlugifyUsername(in.Username)
	if username == "" {
		return "", &domain.ErrValidation{Field: "username", Message: "must contain letters or digits"}
	}
	if usernameTaken(st, username, selfID) {
		return "", &domain.ErrConstraint{Message: fmt.Sprintf("username %q is already taken", username)}
	}
	return username, nil
}

func usernameTaken(st *domain.State, username string, exceptID int64) bool {
	for _, c := range st.Customers {
		if c.ID != exceptID && strings.EqualFold(c.Username, username) {
			return true
		}
	}
	return false
}

func normalizeCustomerInput(in domain.CustomerInput) domain.CustomerInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Password = strings.TrimSpace(in.Password)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.NotificationPreference == "" {
		in.NotificationPreference = domain.ChannelWebApp
	}
	if in.Role == "" {
		in.Role = domain.RoleCustomer
	}
	return in
}

func customerIndex(st *domain.State, id int64) int {
	for i := range st.Customers {
		if st.Customers[i].ID == id {
			return i
		}
	}
	return -1
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
