package resource

// Tier groups resource kinds by where they sit in a typical apply order.
// Lower tiers are applied earlier and tend to be depended on by higher ones.
type Tier int

const (
	// TierCluster covers cluster-wide roots: namespaces, storage classes,
	// CRDs, cluster-scoped policy and authority objects.
	TierCluster Tier = iota

	// TierConfig covers configuration and credential objects.
	TierConfig

	// TierStorage covers storage claims and volumes.
	TierStorage

	// TierWorkload covers pod-producing workloads.
	TierWorkload

	// TierRouting covers services, ingresses, and gateway objects.
	TierRouting

	// TierOther is the fallback for unrecognized kinds.
	TierOther
)

var kindTiers = map[string]Tier{
	"Namespace":                      TierCluster,
	"CustomResourceDefinition":       TierCluster,
	"StorageClass":                   TierCluster,
	"ClusterRole":                    TierCluster,
	"ClusterRoleBinding":             TierCluster,
	"ClusterIssuer":                  TierCluster,
	"ValidatingWebhookConfiguration": TierCluster,
	"MutatingWebhookConfiguration":   TierCluster,
	"PriorityClass":                  TierCluster,

	"ConfigMap":      TierConfig,
	"Secret":         TierConfig,
	"ServiceAccount": TierConfig,
	"Role":           TierConfig,
	"RoleBinding":    TierConfig,
	"Issuer":         TierConfig,
	"Certificate":    TierConfig,

	"PersistentVolume":      TierStorage,
	"PersistentVolumeClaim": TierStorage,

	"Deployment":  TierWorkload,
	"StatefulSet": TierWorkload,
	"DaemonSet":   TierWorkload,
	"ReplicaSet":  TierWorkload,
	"Job":         TierWorkload,
	"CronJob":     TierWorkload,
	"Pod":         TierWorkload,

	"Service":       TierRouting,
	"Ingress":       TierRouting,
	"HTTPRoute":     TierRouting,
	"Gateway":       TierRouting,
	"NetworkPolicy": TierRouting,
}

// KindTier returns the apply-order tier for a kind. The tier is only a
// tie-breaker: an explicit weight annotation always wins over it.
func KindTier(kind string) Tier {
	if t, ok := kindTiers[kind]; ok {
		return t
	}
	return TierOther
}

var tierNames = map[string]Tier{
	"cluster":  TierCluster,
	"config":   TierConfig,
	"storage":  TierStorage,
	"workload": TierWorkload,
	"routing":  TierRouting,
	"other":    TierOther,
}

// TierByName resolves a tier by its configuration name.
func TierByName(name string) (Tier, bool) {
	t, ok := tierNames[name]
	return t, ok
}

// IsClusterRoot reports whether the kind is a cluster-wide root object.
func IsClusterRoot(kind string) bool {
	return KindTier(kind) == TierCluster
}

// IsConfigOrCredential reports whether the kind carries configuration or
// credentials consumed by other resources.
func IsConfigOrCredential(kind string) bool {
	return kind == "ConfigMap" || kind == "Secret" || kind == "Certificate"
}

// IsWorkload reports whether the kind produces pods.
func IsWorkload(kind string) bool {
	return KindTier(kind) == TierWorkload
}

// IsRouting reports whether the kind routes or exposes traffic.
func IsRouting(kind string) bool {
	return KindTier(kind) == TierRouting
}
