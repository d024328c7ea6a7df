// Package dataclient wires a database client into a container: it owns the
// client singleton, binds one locked accessor per model and relays middleware
// bindings contributed through the MiddlewareExtensionPoint to the client.
package dataclient

// Well-known container keys and tags.
const (
	// ComponentKey is the key under which the component and its configuration are bound.
	ComponentKey = "components.DataClientComponent"

	// ClientInstanceKey holds the client singleton.
	ClientInstanceKey = "dataclient.client"

	// DatasourceKey holds the datasource configuration read by the default client factory.
	DatasourceKey = "dataclient.datasource"

	// DefaultModelNamespace prefixes model accessor keys: "dataclient.models.User".
	DefaultModelNamespace = "dataclient.models"

	// ModelTag is applied to every model accessor binding by default.
	ModelTag = "dataclientModel"

	// MiddlewareExtensionPoint is the extension point middleware bindings contribute to.
	MiddlewareExtensionPoint = "dataclientMiddleware"
)

// ModelKey returns the accessor key of model under namespace.
func ModelKey(namespace, model string) string {
	return namespace + "." + model
}
