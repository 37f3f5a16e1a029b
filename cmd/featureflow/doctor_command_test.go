package main

import (
	"testing"

	"featureflow/internal/testsupport"
)

func TestDoctorReportsChecks(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "State directory")
	requireContains(t, out, "scaffold (built in)")
	requireContains(t, out, "0 features, 0 runs")
}

func TestDoctorFailsForMissingGenerator(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithGeneratorScript("exit 0"))
	env.cfg.Generator.Command = "clearly-not-present-generator"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatalf("expected doctor to fail, output %q", out)
	}
	requireContains(t, err.Error(), "Generator")

	if _, _, err := runCLI(t, []string{"run", "validate", "--features", "a"}, env.configPath); err == nil {
		t.Fatal("expected run to be refused by preflight")
	}
}
