package bootstrap

// PermissionCatalog is the full set of grantable operation codes. Seeding
// upserts every entry and keeps descriptions current, so adding a code
// here is all a new endpoint needs.
var PermissionCatalog = map[string]string{
	"materials.read":        "View materials",
	"materials.write":       "Create and edit materials",
	"materials.delete":      "Delete or deactivate materials",
	"inventory.read":        "View inventory",
	"inventory.adjust":      "Adjust inventory",
	"orders.read":           "View orders",
	"orders.write":          "Create orders",
	"inbound.receive":       "Receive inbound orders",
	"outbound.reserve":      "Reserve outbound stock",
	"outbound.pick":         "Pick outbound stock",
	"outbound.pack":         "Pack outbound orders",
	"outbound.ship":         "Ship outbound orders",
	"stock_moves.read":      "View stock movement history",
	"users.read":            "View users",
	"users.write":           "Manage users",
	"roles.read":            "View roles",
	"roles.write":           "Manage roles",
	"system.setup":          "System initialization",
	"areas.read":            "View areas",
	"areas.write":           "Manage areas",
	"locations.read":        "View locations",
	"locations.write":       "Manage locations",
	"containers.read":       "View containers",
	"containers.write":      "Manage containers",
	"container_moves.read":  "View container movement history",
	"container_moves.write": "Move containers",
}
