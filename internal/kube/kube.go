package kube

import (
	"context"
	"fmt"
	"sort"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // Important for various auth providers
	"k8s.io/client-go/tools/clientcmd"
)

// apiTimeout bounds every discovery call so a dead cluster cannot hang the
// CLI.
const apiTimeout = 15 * time.Second

// ServicePort is one exposed port of a discovered service.
type ServicePort struct {
	Name string
	Port int32
}

// Service is a discovered cluster service with the ports a tunnel could
// target.
type Service struct {
	Name      string
	Namespace string
	Ports     []ServicePort
}

// Client wraps a Kubernetes clientset for namespace and service discovery.
type Client struct {
	clientset kubernetes.Interface
}

// NewClient builds a client from the local kubeconfig. An empty contextName
// uses the current context.
func NewClient(contextName string) (*Client, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{}
	if contextName != "" {
		configOverrides.CurrentContext = contextName
	}

	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)
	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get Kubernetes client config for context '%s': %w", contextName, err)
	}
	restConfig.Timeout = apiTimeout

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	return &Client{clientset: clientset}, nil
}

// NewClientForTesting wraps an existing clientset, typically a fake.
func NewClientForTesting(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

// ListNamespaces returns all namespace names in the cluster, sorted.
func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	nsList, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	names := make([]string, 0, len(nsList.Items))
	for _, ns := range nsList.Items {
		names = append(names, ns.Name)
	}
	sort.Strings(names)
	return names, nil
}

// ListServices returns the services in a namespace with their ports, sorted
// by name.
func (c *Client) ListServices(ctx context.Context, namespace string) ([]Service, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	svcList, err := c.clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list services in namespace '%s': %w", namespace, err)
	}

	services := make([]Service, 0, len(svcList.Items))
	for _, svc := range svcList.Items {
		out := Service{
			Name:      svc.Name,
			Namespace: svc.Namespace,
		}
		for _, p := range svc.Spec.Ports {
			out.Ports = append(out.Ports, ServicePort{Name: p.Name, Port: p.Port})
		}
		services = append(services, out)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

// CurrentContext returns the active kubeconfig context name.
var CurrentContext = func() (string, error) {
	pathOptions := clientcmd.NewDefaultPathOptions()
	config, err := pathOptions.GetStartingConfig()
	if err != nil {
		return "", fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	if config.CurrentContext == "" {
		return "", fmt.Errorf("current kubeconfig context is not set")
	}
	return config.CurrentContext, nil
}
