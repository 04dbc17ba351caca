package notifications

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/pkg/logger"
)

// Reference types a notification may point at.
const (
	ReferenceProject     = "project"
	ReferenceRequisition = "requisition"
)

var referenceSegments = map[string]string{
	ReferenceProject:     "projects",
	ReferenceRequisition: "requisitions",
}

// ResolveTarget returns the view path for a referenced record. Guests, blank
// references and unknown reference types produce no target.
func ResolveTarget(role identity.Role, referenceType, referenceID string) (string, bool) {
	if role.IsGuest() {
		return "", false
	}
	referenceType = strings.ToLower(strings.TrimSpace(referenceType))
	referenceID = strings.TrimSpace(referenceID)
	if referenceType == "" || referenceID == "" {
		return "", false
	}

	segment, ok := referenceSegments[referenceType]
	if !ok {
		logger.WithModule("notifications").Warn("unknown reference type",
			zap.String("reference_type", referenceType),
			zap.String("reference_id", referenceID))
		return "", false
	}
	return "/" + role.String() + "/" + segment + "/view/" + url.PathEscape(referenceID), true
}

// ViewAllPath returns the full notification center path for role.
func ViewAllPath(role identity.Role) (string, bool) {
	if role.IsGuest() {
		return "", false
	}
	return "/" + role.String() + "/notifications", true
}

// Center pairs a Store with the viewer's role for the full notification view.
type Center struct {
	Store *Store
	Role  identity.Role
}

// Click returns where selecting n should navigate. Selecting does not change
// the read flag.
func (c Center) Click(n Notification) (string, bool) {
	return ResolveTarget(c.Role, n.ReferenceType, n.ReferenceID)
}
