// SPDX-License-Identifier: Apache-2.0

package signing

import "testing"

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"workflow_id":"wf_1"}`)
	sig := Sign("secret", body)
	if sig == "" {
		t.Fatal("expected signature")
	}
	if !Verify("secret", body, sig) {
		t.Fatal("expected signature to verify")
	}
	if !Verify("secret", body, "sha256="+sig) {
		t.Fatal("expected prefixed signature to verify")
	}
	if Verify("other", body, sig) {
		t.Fatal("expected wrong secret to fail")
	}
	if Verify("secret", []byte(`{"workflow_id":"wf_2"}`), sig) {
		t.Fatal("expected tampered body to fail")
	}
	if Verify("secret", body, "not-hex") {
		t.Fatal("expected malformed signature to fail")
	}
}

func TestSignBlankSecret(t *testing.T) {
	if got := Sign("  ", []byte("x")); got != "" {
		t.Fatalf("expected empty signature, got %q", got)
	}
	if Verify("", []byte("x"), "") {
		t.Fatal("blank secret must never verify")
	}
}
