package backend

import "procura/internal/auth/models"

// Seeded resource paths.
const (
	ProjectID = "p-100"
)

func seedResources() map[string]Resource {
	return map[string]Resource{
		"dashboard/stats": {Body: map[string]any{
			"openRequisitions": 4,
			"openRfqs":         2,
			"pendingInvoices":  3,
			"activeProjects":   1,
		}},
		"requisitions": {MinRole: models.RoleField, Body: []map[string]any{
			{"id": "req-1", "projectId": ProjectID, "status": "submitted", "items": 3},
			{"id": "req-2", "projectId": ProjectID, "status": "draft", "items": 1},
		}},
		"rfqs": {MinRole: models.RolePurchaser, Body: []map[string]any{
			{"id": "rfq-1", "requisitionId": "req-1", "status": "open", "vendorCount": 3},
		}},
		"purchase-orders": {MinRole: models.RolePurchaser, Body: []map[string]any{
			{"id": "po-1", "vendorId": "v-1", "total": 12500.5, "status": "issued"},
		}},
		"deliveries": {MinRole: models.RoleField, Body: []map[string]any{
			{"id": "del-1", "purchaseOrderId": "po-1", "status": "received"},
		}},
		"invoices": {MinRole: models.RoleAP, Body: []map[string]any{
			{"id": "inv-1", "purchaseOrderId": "po-1", "amount": 12500.5, "status": "pending"},
		}},
		"materials": {MinRole: models.RoleField, Body: []map[string]any{
			{"id": "mat-1", "name": "Rebar #4", "unit": "ton"},
			{"id": "mat-2", "name": "Ready-mix concrete", "unit": "m3"},
		}},
		"vendors": {MinRole: models.RolePurchaser, Body: []map[string]any{
			{"id": "v-1", "name": "Steelworks Ltd", "rating": 4.5},
		}},
		"projects": {MinRole: models.RolePM, Body: []map[string]any{
			{"id": ProjectID, "name": "North Tower", "status": "active"},
		}},
		"projects/" + ProjectID: {MinRole: models.RolePM, Body: map[string]any{
			"id": ProjectID, "name": "North Tower", "status": "active", "managerId": "22222222-2222-2222-2222-222222222222",
		}},
		"projects/" + ProjectID + "/budget": {MinRole: models.RolePM, Body: map[string]any{
			"projectId": ProjectID, "budget": 2500000, "committed": 812000, "spent": 430000,
		}},
		"search": {MinRole: models.RoleField, Body: []map[string]any{
			{"type": "material", "id": "mat-1", "label": "Rebar #4"},
			{"type": "vendor", "id": "v-1", "label": "Steelworks Ltd"},
		}},
		"admin/users": {MinRole: models.RoleAdmin, Body: []map[string]any{
			{"id": "11111111-1111-1111-1111-111111111111", "email": "admin@procura.test", "role": "Admin"},
			{"id": "33333333-3333-3333-3333-333333333333", "email": "purchaser@procura.test", "role": "Purchaser"},
		}},
	}
}
