package file

import "testing"

func TestValidateUserID(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		valid  bool
	}{
		{"valid uuid", "123e4567-e89b-12d3-a456-426614174000", true},
		{"uppercase uuid", "123E4567-E89B-12D3-A456-426614174000", true},
		{"empty", "", false},
		{"not a uuid", "alice", false},
		{"uuid with prefix", "user#123e4567-e89b-12d3-a456-426614174000", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUserID(tc.userID)
			if tc.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.valid {
				if err == nil {
					t.Fatal("expected an error")
				}
				if err.Code != CodeInvalidUserID {
					t.Errorf("expected code %s, got %s", CodeInvalidUserID, err.Code)
				}
				details := err.Details.(ValidationDetails)
				if details.Received != tc.userID {
					t.Errorf("expected received %q, got %q", tc.userID, details.Received)
				}
			}
		})
	}
}

func TestValidateLessonID(t *testing.T) {
	cases := []struct {
		name     string
		lessonID string
		valid    bool
	}{
		{"valid", "lesson#123e4567-e89b-12d3-a456-426614174000", true},
		{"empty", "", false},
		{"bare uuid", "123e4567-e89b-12d3-a456-426614174000", false},
		{"wrong prefix", "course#123e4567-e89b-12d3-a456-426614174000", false},
		{"prefix only", "lesson#", false},
		{"prefix with junk", "lesson#not-a-uuid", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLessonID(tc.lessonID)
			if tc.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.valid {
				if err == nil {
					t.Fatal("expected an error")
				}
				if err.Code != CodeInvalidLessonID {
					t.Errorf("expected code %s, got %s", CodeInvalidLessonID, err.Code)
				}
			}
		})
	}
}
