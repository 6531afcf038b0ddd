package pii

import "testing"

func TestSanitize_SSN(t *testing.T) {
	s := New()
	out, findings := s.Sanitize(map[string]interface{}{"ssn": "123-45-6789"}, false)

	if out["ssn"] != "<SSN>" {
		t.Errorf("ssn = %v, want masked", out["ssn"])
	}
	if len(findings) != 1 || findings[0].EntityType != EntitySSN {
		t.Errorf("findings = %+v, want one SSN finding", findings)
	}
}

func TestSanitize_Email(t *testing.T) {
	s := New()
	out, findings := s.Sanitize(map[string]interface{}{"contact": "jane.doe@example.com"}, false)

	if out["contact"] != "<EMAIL>" {
		t.Errorf("contact = %v, want masked", out["contact"])
	}
	if len(findings) != 1 || findings[0].EntityType != EntityEmail {
		t.Errorf("findings = %+v, want one EMAIL finding", findings)
	}
}

func TestSanitize_CreditCard_LuhnValid(t *testing.T) {
	s := New()
	out, findings := s.Sanitize(map[string]interface{}{"card": "4111111111111111"}, false)

	if out["card"] != "<CREDIT_CARD>" {
		t.Errorf("card = %v, want masked", out["card"])
	}
	if len(findings) != 1 || findings[0].LowConfidence {
		t.Errorf("findings = %+v, want one non-low-confidence CREDIT_CARD finding", findings)
	}
}

func TestSanitize_CreditCard_LuhnInvalid_NotMasked(t *testing.T) {
	s := New()
	// 16 digits, same shape, fails the Luhn checksum.
	out, findings := s.Sanitize(map[string]interface{}{"card": "1234567890123456"}, false)

	if out["card"] != "1234567890123456" {
		t.Errorf("card = %v, should be unmasked when Luhn check fails", out["card"])
	}
	if len(findings) != 0 {
		t.Errorf("findings = %+v, want none", findings)
	}
}

func TestSanitize_Degraded_SkipsLuhnAndFlagsLowConfidence(t *testing.T) {
	s := New()
	out, findings := s.Sanitize(map[string]interface{}{"card": "1234567890123456"}, true)

	if out["card"] != "<CREDIT_CARD>" {
		t.Errorf("card = %v, want masked in degraded mode regardless of Luhn", out["card"])
	}
	if len(findings) != 1 || !findings[0].LowConfidence {
		t.Errorf("findings = %+v, want one low_confidence finding", findings)
	}
}

func TestSanitize_NestedStructures(t *testing.T) {
	s := New()
	params := map[string]interface{}{
		"customer": map[string]interface{}{
			"email": "a@b.com",
			"tags":  []interface{}{"vip", "ssn:123-45-6789"},
		},
		"amount": 42.0,
		"active": true,
	}

	out, findings := s.Sanitize(params, false)

	customer := out["customer"].(map[string]interface{})
	if customer["email"] != "<EMAIL>" {
		t.Errorf("nested email = %v, want masked", customer["email"])
	}
	tags := customer["tags"].([]interface{})
	if tags[1] != "ssn:<SSN>" {
		t.Errorf("tags[1] = %v, want masked SSN embedded in string", tags[1])
	}
	if out["amount"] != 42.0 {
		t.Errorf("amount = %v, numeric leaves must pass through unchanged", out["amount"])
	}
	if out["active"] != true {
		t.Errorf("active = %v, boolean leaves must pass through unchanged", out["active"])
	}
	if len(findings) != 2 {
		t.Errorf("findings = %+v, want 2", findings)
	}
}

func TestSanitize_NilParams(t *testing.T) {
	s := New()
	out, findings := s.Sanitize(nil, false)
	if out == nil || len(out) != 0 {
		t.Errorf("out = %v, want empty map", out)
	}
	if findings != nil {
		t.Errorf("findings = %v, want nil", findings)
	}
}

func TestSanitize_CleanStringUnaffected(t *testing.T) {
	s := New()
	out, findings := s.Sanitize(map[string]interface{}{"note": "please process this refund"}, false)
	if out["note"] != "please process this refund" {
		t.Errorf("note = %v, should be unchanged", out["note"])
	}
	if len(findings) != 0 {
		t.Errorf("findings = %+v, want none", findings)
	}
}
