// Package deploy builds and applies the workload, service and route of an application.
package deploy

import (
	"encoding/json"
	"fmt"
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Container ports.
const (
	AppPort     int32 = 3042
	MetricsPort int32 = 9090

	AppPortName     = "app"
	MetricsPortName = "metrics"
)

// Labels shared by every deployed application.
const (
	LabelName     = "app.kubernetes.io/name"
	LabelInstance = "app.kubernetes.io/instance"
	LabelMonitor  = "platformatic.dev/monitor"

	AppKind = "wattpro"
)

// InstanceIDVar is injected with the pod name.
const InstanceIDVar = "PLT_INSTANCE_ID"

// App describes one application deployment.
type App struct {
	Name      string
	Image     string
	Namespace string
	Env       map[string]string
	// Prefix is the route path prefix without the leading slash. Empty uses Name.
	Prefix string
}

// PathPrefix returns the route prefix of the app.
func (a App) PathPrefix() string {
	if a.Prefix != "" {
		return a.Prefix
	}
	return a.Name
}

// Manifests are the typed objects planned for an app.
type Manifests struct {
	Deployment *appsv1.Deployment
	Service    *corev1.Service
}

// Plan builds the deployment and service of app. The result depends only on app.
func Plan(app App) Manifests {
	return Manifests{Deployment: deployment(app), Service: service(app)}
}

// Encode renders an object as compact JSON.
func Encode(obj any) ([]byte, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

func labels(app App) map[string]string {
	return map[string]string{
		LabelName:     AppKind,
		LabelInstance: app.Name,
	}
}

func deployment(app App) *appsv1.Deployment {
	podLabels := labels(app)
	podLabels[LabelMonitor] = "prometheus"

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      app.Name,
			Namespace: app.Namespace,
			Labels:    labels(app),
		},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{LabelInstance: app.Name},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:            app.Name,
						Image:           app.Image,
						ImagePullPolicy: corev1.PullAlways,
						Ports: []corev1.ContainerPort{
							{Name: AppPortName, ContainerPort: AppPort, Protocol: corev1.ProtocolTCP},
							{Name: MetricsPortName, ContainerPort: MetricsPort, Protocol: corev1.ProtocolTCP},
						},
						ReadinessProbe: &corev1.Probe{
							ProbeHandler:        httpGet("/ready"),
							InitialDelaySeconds: 30,
							PeriodSeconds:       30,
							FailureThreshold:    1,
						},
						LivenessProbe: &corev1.Probe{
							ProbeHandler:     httpGet("/status"),
							PeriodSeconds:    2,
							SuccessThreshold: 1,
							TimeoutSeconds:   1,
							FailureThreshold: 5,
						},
						StartupProbe: &corev1.Probe{
							ProbeHandler:        httpGet("/ready"),
							InitialDelaySeconds: 5,
							PeriodSeconds:       3,
							SuccessThreshold:    1,
							FailureThreshold:    15,
						},
						Env:       envVars(app.Env),
						Resources: defaultResources(),
					}},
				},
			},
		},
	}
}

func service(app App) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      app.Name,
			Namespace: app.Namespace,
			Labels:    labels(app),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: map[string]string{LabelInstance: app.Name},
			Ports: []corev1.ServicePort{
				{Name: AppPortName, Protocol: corev1.ProtocolTCP, Port: AppPort, TargetPort: intstr.FromString(AppPortName)},
				{Name: MetricsPortName, Protocol: corev1.ProtocolTCP, Port: MetricsPort, TargetPort: intstr.FromString(MetricsPortName)},
			},
		},
	}
}

func httpGet(path string) corev1.ProbeHandler {
	return corev1.ProbeHandler{HTTPGet: &corev1.HTTPGetAction{
		Path:   path,
		Port:   intstr.FromString(MetricsPortName),
		Scheme: corev1.URISchemeHTTP,
	}}
}

func defaultResources() corev1.ResourceRequirements {
	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceMemory: resource.MustParse("1Gi"),
			corev1.ResourceCPU:    resource.MustParse("1000m"),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceMemory: resource.MustParse("2Gi"),
			corev1.ResourceCPU:    resource.MustParse("1500m"),
		},
	}
}

// envVars sorts by name and appends the instance id reference.
func envVars(vars map[string]string) []corev1.EnvVar {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]corev1.EnvVar, 0, len(names)+1)
	for _, name := range names {
		out = append(out, corev1.EnvVar{Name: name, Value: vars[name]})
	}
	return append(out, corev1.EnvVar{
		Name: InstanceIDVar,
		ValueFrom: &corev1.EnvVarSource{
			FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.name"},
		},
	})
}
