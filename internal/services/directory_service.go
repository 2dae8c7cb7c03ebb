package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
)

type DirectoryStore interface {
	ledger.OrganizationStore
	ledger.UnitStore
	ledger.ResidentStore
}

// DirectoryService manages organizations, their units and residents.
type DirectoryService struct {
	store DirectoryStore
	opts  options
}

func NewDirectoryService(store DirectoryStore, opts ...Option) *DirectoryService {
	return &DirectoryService{store: store, opts: buildOptions(opts)}
}

func (s *DirectoryService) CreateOrganization(ctx context.Context, o core.Organization) (core.Organization, error) {
	o.Name = strings.TrimSpace(o.Name)
	o.Address = strings.TrimSpace(o.Address)
	if err := o.Validate(); err != nil {
		return core.Organization{}, err
	}
	now := s.opts.now().UTC()
	o.ID = ""
	o.CreatedAt, o.UpdatedAt = now, now

	created, err := s.store.CreateOrganization(ctx, o)
	if err != nil {
		return core.Organization{}, fmt.Errorf("create organization: %w", err)
	}
	slog.InfoContext(ctx, "Organization created", "organization_id", created.ID, "name", created.Name)
	return created, nil
}

func (s *DirectoryService) GetOrganization(ctx context.Context, id string) (core.Organization, error) {
	return s.store.GetOrganization(ctx, id)
}

func (s *DirectoryService) ListOrganizations(ctx context.Context) ([]core.Organization, error) {
	return s.store.ListOrganizations(ctx)
}

// ListManagedOrganizations returns the organizations managerID manages.
func (s *DirectoryService) ListManagedOrganizations(ctx context.Context, managerID string) ([]core.Organization, error) {
	all, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Organization, 0, len(all))
	for _, o := range all {
		if o.ManagerID == managerID {
			out = append(out, o)
		}
	}
	return out, nil
}

// UpdateOrganization replaces the mutable fields of an organization.
func (s *DirectoryService) UpdateOrganization(ctx context.Context, o core.Organization) (core.Organization, error) {
	current, err := s.store.GetOrganization(ctx, o.ID)
	if err != nil {
		return core.Organization{}, err
	}
	current.Name = strings.TrimSpace(o.Name)
	current.Address = strings.TrimSpace(o.Address)
	current.TotalUnits = o.TotalUnits
	current.MonthlyDueAmount = o.MonthlyDueAmount
	if err := current.Validate(); err != nil {
		return core.Organization{}, err
	}
	current.UpdatedAt = s.opts.now().UTC()
	return s.store.UpdateOrganization(ctx, current)
}

func (s *DirectoryService) CreateUnit(ctx context.Context, orgID string, u core.Unit) (core.Unit, error) {
	u.ID = ""
	u.OrganizationID = orgID
	u.UnitNumber = strings.TrimSpace(u.UnitNumber)
	if err := u.Validate(); err != nil {
		return core.Unit{}, err
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return core.Unit{}, err
	}
	if u.ResidentID != "" {
		if err := s.checkResident(ctx, orgID, u.ResidentID); err != nil {
			return core.Unit{}, err
		}
	}
	u.CreatedAt = s.opts.now().UTC()
	return s.store.CreateUnit(ctx, u)
}

func (s *DirectoryService) ListUnits(ctx context.Context, orgID string) ([]core.Unit, error) {
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return s.store.ListUnits(ctx, orgID)
}

// GetUnit returns a unit of the organization. Units of other
// organizations are reported as missing.
func (s *DirectoryService) GetUnit(ctx context.Context, orgID, unitID string) (core.Unit, error) {
	u, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return core.Unit{}, err
	}
	if u.OrganizationID != orgID {
		return core.Unit{}, core.NotFound("unit", unitID)
	}
	return u, nil
}

// UpdateUnit changes the unit number and floor. The resident is managed
// through AssignResident.
func (s *DirectoryService) UpdateUnit(ctx context.Context, orgID string, u core.Unit) (core.Unit, error) {
	current, err := s.GetUnit(ctx, orgID, u.ID)
	if err != nil {
		return core.Unit{}, err
	}
	current.UnitNumber = strings.TrimSpace(u.UnitNumber)
	current.Floor = u.Floor
	if err := current.Validate(); err != nil {
		return core.Unit{}, err
	}
	updated, err := s.store.UpdateUnit(ctx, current)
	if err != nil {
		return core.Unit{}, err
	}
	slog.InfoContext(ctx, "Unit updated", "organization_id", orgID, "unit_id", updated.ID, "unit", updated.UnitNumber)
	return updated, nil
}

// AssignResident moves a resident into a unit. An empty residentID marks
// the unit vacant.
func (s *DirectoryService) AssignResident(ctx context.Context, orgID, unitID, residentID string) (core.Unit, error) {
	unit, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return core.Unit{}, err
	}
	if unit.OrganizationID != orgID {
		return core.Unit{}, core.NotFound("unit", unitID)
	}
	if residentID != "" {
		if err := s.checkResident(ctx, orgID, residentID); err != nil {
			return core.Unit{}, err
		}
	}
	return s.store.AssignResident(ctx, unitID, residentID)
}

func (s *DirectoryService) CreateResident(ctx context.Context, orgID string, r core.Resident) (core.Resident, error) {
	r.ID = ""
	r.OrganizationID = orgID
	r.FullName = strings.TrimSpace(r.FullName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.TrimSpace(r.Email)
	if err := r.Validate(); err != nil {
		return core.Resident{}, err
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return core.Resident{}, err
	}
	r.CreatedAt = s.opts.now().UTC()
	return s.store.CreateResident(ctx, r)
}

func (s *DirectoryService) GetResident(ctx context.Context, orgID, residentID string) (core.Resident, error) {
	r, err := s.store.GetResident(ctx, residentID)
	if err != nil {
		return core.Resident{}, err
	}
	if r.OrganizationID != orgID {
		return core.Resident{}, core.NotFound("resident", residentID)
	}
	return r, nil
}

// UpdateResident replaces a resident's name and contact details.
func (s *DirectoryService) UpdateResident(ctx context.Context, orgID string, r core.Resident) (core.Resident, error) {
	current, err := s.GetResident(ctx, orgID, r.ID)
	if err != nil {
		return core.Resident{}, err
	}
	current.FullName = strings.TrimSpace(r.FullName)
	current.Phone = strings.TrimSpace(r.Phone)
	current.Email = strings.TrimSpace(r.Email)
	if err := current.Validate(); err != nil {
		return core.Resident{}, err
	}
	return s.store.UpdateResident(ctx, current)
}

func (s *DirectoryService) ListResidents(ctx context.Context, orgID string) ([]core.Resident, error) {
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return s.store.ListResidents(ctx, orgID)
}

func (s *DirectoryService) checkResident(ctx context.Context, orgID, residentID string) error {
	_, err := s.GetResident(ctx, orgID, residentID)
	return err
}
