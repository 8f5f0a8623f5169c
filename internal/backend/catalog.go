package backend

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ServiceInfo describes one migratable cloud service.
type ServiceInfo struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (s *ServiceInfo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s.ID); err != nil {
			return err
		}
		s.Name = s.ID
		return nil
	}
	type plain ServiceInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = ServiceInfo(p)
	if s.ID == "" {
		s.ID = s.Name
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	return nil
}

// Catalog lists the migratable services of each provider.
type Catalog map[Provider][]ServiceInfo

// Services returns the services for a provider.
func (c Catalog) Services(p Provider) []ServiceInfo {
	return c[p]
}

// Lookup finds a service of a provider by id or display name, ignoring case
// and separators.
func (c Catalog) Lookup(p Provider, name string) (ServiceInfo, bool) {
	key := normalizeServiceKey(name)
	if key == "" {
		return ServiceInfo{}, false
	}
	for _, s := range c[p] {
		if normalizeServiceKey(s.ID) == key || normalizeServiceKey(s.Name) == key {
			return s, true
		}
	}
	return ServiceInfo{}, false
}

func normalizeServiceKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

func decodeCatalog(payload []byte) (Catalog, error) {
	var wrapped struct {
		Services json.RawMessage `json:"services"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && len(wrapped.Services) > 0 {
		payload = wrapped.Services
	}
	var raw map[string][]ServiceInfo
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	catalog := make(Catalog, len(raw))
	for provider, services := range raw {
		catalog[Provider(strings.ToLower(provider))] = services
	}
	return catalog, nil
}

// DefaultCatalog is used when the backend catalog is unavailable.
func DefaultCatalog() Catalog {
	return Catalog{
		ProviderAWS: {
			{ID: "s3", Name: "Amazon S3", Description: "Object storage → Cloud Storage"},
			{ID: "dynamodb", Name: "Amazon DynamoDB", Description: "NoSQL tables → Firestore"},
			{ID: "lambda", Name: "AWS Lambda", Description: "Functions → Cloud Functions"},
			{ID: "sqs", Name: "Amazon SQS", Description: "Queues → Pub/Sub"},
			{ID: "sns", Name: "Amazon SNS", Description: "Notifications → Pub/Sub"},
			{ID: "rds", Name: "Amazon RDS", Description: "Relational databases → Cloud SQL"},
			{ID: "secretsmanager", Name: "AWS Secrets Manager", Description: "Secrets → Secret Manager"},
		},
		ProviderAzure: {
			{ID: "blob_storage", Name: "Azure Blob Storage", Description: "Object storage → Cloud Storage"},
			{ID: "cosmos_db", Name: "Azure Cosmos DB", Description: "NoSQL documents → Firestore"},
			{ID: "functions", Name: "Azure Functions", Description: "Functions → Cloud Functions"},
			{ID: "service_bus", Name: "Azure Service Bus", Description: "Queues → Pub/Sub"},
			{ID: "event_hubs", Name: "Azure Event Hubs", Description: "Event streams → Pub/Sub"},
			{ID: "sql_database", Name: "Azure SQL Database", Description: "Relational databases → Cloud SQL"},
			{ID: "key_vault", Name: "Azure Key Vault", Description: "Secrets → Secret Manager"},
		},
	}
}
