// Package kubernetes acquires sandbox servers through agent-sandbox
// SandboxClaim CRDs. Unlike a static URL, a claim-backed sandbox lives for
// the duration of one agent session: Acquire creates the claim and waits
// for the pod, the release function deletes the claim when the session's
// environment closes.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/reagent-dev/reagent/pkg/runtime/sandbox"
)

// ClaimAcquirer implements sandbox.Acquirer on top of SandboxClaim CRDs.
type ClaimAcquirer struct {
	client    client.Client
	template  string
	namespace string
	timeout   time.Duration
}

var _ sandbox.Acquirer = (*ClaimAcquirer)(nil)

// NewClaimAcquirer creates a ClaimAcquirer for the given SandboxTemplate.
func NewClaimAcquirer(c client.Client, template, namespace string, timeout time.Duration) *ClaimAcquirer {
	return &ClaimAcquirer{
		client:    c,
		template:  template,
		namespace: namespace,
		timeout:   timeout,
	}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*k8sruntime.Scheme, error) {
	scheme := k8sruntime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Acquire creates a SandboxClaim, waits for its Sandbox to become ready,
// and returns the sandbox URL with a release function that deletes the
// claim.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	claimName := newClaimName()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      claimName,
			Namespace: a.namespace,
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{
				Name: a.template,
			},
		},
	}

	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", claimName, err)
	}
	slog.Debug("SandboxClaim created", "claim", claimName, "template", a.template)

	serviceFQDN, err := a.waitForReady(ctx, claimName)
	if err != nil {
		a.deleteClaim(context.WithoutCancel(ctx), claimName)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:8080", serviceFQDN)
	release := func() {
		a.deleteClaim(context.Background(), claimName)
	}

	slog.Info("sandbox acquired via claim", "claim", claimName, "url", url)
	return url, release, nil
}

// waitForReady polls the Sandbox resource until its Ready condition is
// True and its ServiceFQDN is populated, or the timeout expires.
func (a *ClaimAcquirer) waitForReady(ctx context.Context, name string) (string, error) {
	deadline := time.After(a.timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for Sandbox %q: %w", name, ctx.Err())
		case <-deadline:
			return "", fmt.Errorf("Sandbox %q not ready after %s", name, a.timeout)
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			key := types.NamespacedName{Name: name, Namespace: a.namespace}
			if err := a.client.Get(ctx, key, sb); err != nil {
				// The controller may not have created it yet; keep polling.
				continue
			}
			if sandboxReady(sb) && sb.Status.ServiceFQDN != "" {
				return sb.Status.ServiceFQDN, nil
			}
		}
	}
}

func sandboxReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim deletes a SandboxClaim, logging failures rather than
// returning them: it runs from release functions and error cleanup.
func (a *ClaimAcquirer) deleteClaim(ctx context.Context, name string) {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.namespace,
		},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "claim", name, "error", err.Error())
		return
	}
	slog.Debug("SandboxClaim deleted", "claim", name)
}

// newClaimName creates a unique claim name. Replaceable in tests for
// deterministic naming.
var newClaimName = func() string {
	return fmt.Sprintf("reagent-sbx-%d", time.Now().UnixNano())
}
