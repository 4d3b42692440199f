package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/elmanelman/sql-judge/config"
	"github.com/elmanelman/sql-judge/dbconn"
	"github.com/elmanelman/sql-judge/provision"
	"github.com/elmanelman/sql-judge/testutils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

const schoolPreview = `{"tables": [
	{"name": "Students", "columns": ["id", "name", "class"], "rows": [
		{"id": 1, "name": "Ann", "class": "A"},
		{"id": 2, "name": "Bob", "class": "A"},
		{"id": 3, "name": "Cid", "class": "B"},
		{"id": 4, "name": "Dee", "class": "B"},
		{"id": 5, "name": "Eve", "class": "C"},
		{"id": 6, "name": "Fay", "class": "C"}
	]},
	{"name": "Scores", "columns": ["id", "student_id", "score"], "rows": [
		{"id": 1, "student_id": 1, "score": 90},
		{"id": 2, "student_id": 2, "score": 88},
		{"id": 3, "student_id": 3, "score": 80},
		{"id": 4, "student_id": 4, "score": 85},
		{"id": 5, "student_id": 5, "score": 95},
		{"id": 6, "student_id": 6, "score": 86}
	]}
]}`

const classAverageReference = `SELECT s.class, AVG(sc.score) AS avg_score
FROM Students s JOIN Scores sc ON s.id = sc.student_id
GROUP BY s.class
HAVING AVG(sc.score) > 85`

func newTestOrchestrator(t *testing.T, policy string, strict bool) (*Orchestrator, dbconn.Conn) {
	conn := testutils.SQLiteConn(t)
	cfg := config.Default()
	cfg.IsolationConfig.Policy = policy
	cfg.ProvisioningConfig.Strict = strict
	o, err := NewOrchestratorFromConfig(zaptest.NewLogger(t), conn, cfg)
	require.NoError(t, err)
	return o, conn
}

func strPtr(s string) *string {
	return &s
}

func TestJudgeEquivalentFormulations(t *testing.T) {
	for _, policy := range []string{config.PolicyLock, config.PolicyScratch} {
		t.Run(policy, func(t *testing.T) {
			o, _ := newTestOrchestrator(t, policy, false)
			for i, student := range []string{
				`SELECT Students.class, AVG(Scores.score)
				FROM Students, Scores
				WHERE Students.id = Scores.student_id
				GROUP BY Students.class
				HAVING AVG(Scores.score) > 85`,
				`WITH class_avg AS (
					SELECT s.class AS class, AVG(sc.score) AS a
					FROM Students s JOIN Scores sc ON sc.student_id = s.id
					GROUP BY s.class
				)
				SELECT class, a FROM class_avg WHERE a > 85`,
				`SELECT t.class, t.avg_score
				FROM (SELECT s.class, AVG(sc.score) AS avg_score
				      FROM Students s JOIN Scores sc ON s.id = sc.student_id
				      GROUP BY s.class) t
				WHERE t.avg_score > 85`,
				`SELECT s.class, AVG(sc.score)
				FROM Students AS s INNER JOIN Scores AS sc ON s.id = sc.student_id
				GROUP BY s.class
				HAVING AVG(sc.score) > 85;`,
				`SELECT s.class, AVG(sc.score) AS average
				FROM Scores sc JOIN Students s ON sc.student_id = s.id
				GROUP BY s.class
				HAVING AVG(sc.score) > 85`,
			} {
				t.Run(fmt.Sprintf("formulation %d", i+1), func(t *testing.T) {
					v, err := o.Judge(context.Background(), Request{
						StudentSQL:    student,
						ReferenceSQL:  classAverageReference,
						SchemaPreview: json.RawMessage(schoolPreview),
						QuestionKey:   "class-average",
					})
					require.NoError(t, err)
					require.Equal(t, Verdict{IsCorrect: true, Message: "results match", Status: Accepted}, v)
				})
			}

			v, err := o.Judge(context.Background(), Request{
				StudentSQL: `SELECT s.class, AVG(sc.score) FROM Students s JOIN Scores sc ON s.id = sc.student_id
					GROUP BY s.class HAVING AVG(sc.score) >= 82.5`,
				ReferenceSQL:  classAverageReference,
				SchemaPreview: json.RawMessage(schoolPreview),
				QuestionKey:   "class-average",
			})
			require.NoError(t, err)
			require.Equal(t, Verdict{Message: "row count mismatch: expected 2, got 3", Status: IncorrectContent}, v)
		})
	}
}

func TestJudgeSafetyBlocked(t *testing.T) {
	ctx := context.Background()
	o, conn := newTestOrchestrator(t, config.PolicyLock, false)

	req := Request{
		StudentSQL:    "SELECT name FROM Students",
		ReferenceSQL:  "SELECT name FROM Students",
		SchemaPreview: json.RawMessage(schoolPreview),
		QuestionKey:   "names",
	}
	v, err := o.Judge(ctx, req)
	require.NoError(t, err)
	require.True(t, v.IsCorrect)

	for _, tc := range []struct {
		sql      string
		expected string
	}{
		{
			sql:      "DROP TABLE Students",
			expected: "query contains a forbidden operation (keyword: DROP); only SELECT queries are permitted",
		},
		{
			sql:      "/* sneaky */ delete from Students",
			expected: "query contains a forbidden operation (keyword: DELETE); only SELECT queries are permitted",
		},
		{
			sql:      "SELECT 1; REPLACE INTO Students (id, name, class) VALUES (99, 'Zed', 'Z')",
			expected: "query contains multiple statements; only a single SELECT query is permitted",
		},
		{
			sql:      "SELECT 'a\\'; REPLACE INTO Students (id) VALUES (98); --'",
			expected: "query contains multiple statements; only a single SELECT query is permitted",
		},
		{
			sql:      "select name from Students; attach database ':memory:' as other",
			expected: "query contains multiple statements; only a single SELECT query is permitted",
		},
		{
			sql:      "PRAGMA writable_schema = 1",
			expected: "only SELECT queries are permitted",
		},
		{
			sql:      "   ",
			expected: "only SELECT queries are permitted",
		},
	} {
		t.Run(tc.sql, func(t *testing.T) {
			req.StudentSQL = tc.sql
			v, err := o.Judge(ctx, req)
			require.NoError(t, err)
			require.Equal(t, Verdict{Message: tc.expected, IsSafetyBlocked: true, Status: SafetyBlocked}, v)
		})
	}

	var n int
	require.NoError(t, conn.DB().GetContext(ctx, &n, "SELECT count(*) FROM Students"))
	require.Equal(t, 6, n)
}

func TestJudgeAliasEnforcement(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.PolicyLock, false)
	base := Request{
		StudentSQL:    "SELECT id, name FROM Students",
		ReferenceSQL:  "SELECT id AS student_id, name AS student_name FROM Students",
		SchemaPreview: json.RawMessage(schoolPreview),
		QuestionKey:   "aliases",
	}

	for _, tc := range []struct {
		desc     string
		required *string
		expected Verdict
	}{
		{
			desc:     "required",
			required: strPtr("student_id, student_name"),
			expected: Verdict{
				Message: "column structure mismatch: missing columns: student_id, student_name; extra columns: id, name",
				Status:  IncorrectContent,
			},
		},
		{
			desc:     "null",
			expected: Verdict{IsCorrect: true, Message: "results match", Status: Accepted},
		},
		{
			desc:     "blank",
			required: strPtr("  "),
			expected: Verdict{IsCorrect: true, Message: "results match", Status: Accepted},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			req := base
			req.RequiredOutputColumns = tc.required
			v, err := o.Judge(context.Background(), req)
			require.NoError(t, err)
			require.Equal(t, tc.expected, v)
		})
	}

	req := base
	req.StudentSQL = "SELECT name AS student_name, id AS student_id FROM Students"
	req.RequiredOutputColumns = strPtr("student_id, student_name")
	v, err := o.Judge(context.Background(), req)
	require.NoError(t, err)
	require.True(t, v.IsCorrect, v.Message)
}

func TestJudgeOrdering(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.PolicyLock, false)
	preview := `{"tables": [{"name": "t", "columns": ["id", "name"], "rows": [
		{"id": 1, "name": "A"}, {"id": 2, "name": "B"}, {"id": 3, "name": "C"}
	]}]}`
	judge := func(student string) Verdict {
		v, err := o.Judge(context.Background(), Request{
			StudentSQL:    student,
			ReferenceSQL:  "SELECT id, name FROM t ORDER BY id DESC",
			SchemaPreview: json.RawMessage(preview),
			QuestionKey:   "ordering",
		})
		require.NoError(t, err)
		return v
	}

	require.Equal(t, Verdict{
		Message: "row 1 differs from the reference (order or data is wrong)",
		Status:  IncorrectOrder,
	}, judge("SELECT id, name FROM t ORDER BY id"))

	require.Equal(t, Verdict{
		IsCorrect: true,
		Message:   "results match (including order)",
		Status:    Accepted,
	}, judge("SELECT id, name FROM t ORDER BY name DESC"))

	require.Equal(t, Verdict{
		Message: "row 2 differs from the reference (order or data is wrong)",
		Status:  IncorrectContent,
	}, judge("SELECT id, CASE WHEN id = 2 THEN 'x' ELSE name END FROM t ORDER BY id DESC"))

	// ORDER BY inside a window or a derived table does not order the output.
	for _, reference := range []string{
		"SELECT id, ROW_NUMBER() OVER (ORDER BY id DESC) AS rn FROM t",
		"SELECT id, rn FROM (SELECT id, 4 - id AS rn FROM t ORDER BY id DESC LIMIT 3) s",
	} {
		v, err := o.Judge(context.Background(), Request{
			StudentSQL:    "SELECT id, 4 - id FROM t ORDER BY id",
			ReferenceSQL:  reference,
			SchemaPreview: json.RawMessage(preview),
			QuestionKey:   "ordering",
		})
		require.NoError(t, err)
		require.Equal(t, Verdict{IsCorrect: true, Message: "results match", Status: Accepted}, v, reference)
	}
}

func TestJudgeExecutionErrors(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.PolicyLock, false)
	req := Request{
		StudentSQL:    "SELECT nope FROM Students",
		ReferenceSQL:  "SELECT name FROM Students",
		SchemaPreview: json.RawMessage(schoolPreview),
		QuestionKey:   "errors",
	}

	v, err := o.Judge(context.Background(), req)
	require.NoError(t, err)
	require.False(t, v.IsCorrect)
	require.False(t, v.IsSafetyBlocked)
	require.Equal(t, ExecutionError, v.Status)
	require.Equal(t, "student query failed: no such column: nope", v.Message)

	req.StudentSQL = "SELECT name FROM Students"
	req.ReferenceSQL = "SELECT name FROM Teachers"
	v, err = o.Judge(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, Verdict{Message: "reference query failed: no such table: Teachers", Status: ReferenceError}, v)

	req.ReferenceSQL = "UPDATE Students SET name = 'x'"
	v, err = o.Judge(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ReferenceError, v.Status)
	require.Equal(t, "reference query failed: query contains a forbidden operation (keyword: UPDATE); only SELECT queries are permitted", v.Message)
}

func TestJudgeProvisioningFailure(t *testing.T) {
	preview := `{"tables": [{"name": "enrolments", "columns": ["id", "class_id"], "rows": [
		{"id": 1, "class_id": 7}, {"id": 2, "class_id": null}
	]}]}`
	req := Request{
		StudentSQL:    "SELECT count(*) FROM enrolments",
		ReferenceSQL:  "SELECT 0",
		SchemaPreview: json.RawMessage(preview),
		QuestionKey:   "enrolments",
	}

	t.Run("best effort", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, config.PolicyLock, false)
		v, err := o.Judge(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, Verdict{IsCorrect: true, Message: "results match", Status: Accepted}, v)
	})

	t.Run("strict", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, config.PolicyLock, true)
		v, err := o.Judge(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, ReferenceError, v.Status)
		require.True(t, strings.HasPrefix(v.Message, "schema provisioning failed: error provisioning"), v.Message)
		require.Contains(t, v.Message, "NOT NULL constraint failed")
	})
}

func TestJudgeWithoutPreview(t *testing.T) {
	o, conn := newTestOrchestrator(t, config.PolicyScratch, false)
	testutils.Exec(t, conn,
		"CREATE TABLE fixed (a INT)",
		"INSERT INTO fixed VALUES (1), (2)",
	)
	for _, preview := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage(`{"tables": []}`), json.RawMessage(`"not a preview"`)} {
		v, err := o.Judge(context.Background(), Request{
			StudentSQL:    "SELECT a FROM fixed WHERE a > 0",
			ReferenceSQL:  "SELECT a FROM fixed",
			SchemaPreview: preview,
		})
		require.NoError(t, err)
		require.True(t, v.IsCorrect, string(preview))
	}
}

func TestJudgePreviewAsString(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.PolicyLock, false)
	encoded, err := json.Marshal(schoolPreview)
	require.NoError(t, err)
	v, err := o.Judge(context.Background(), Request{
		StudentSQL:    "SELECT count(*) FROM Students",
		ReferenceSQL:  "SELECT 6",
		SchemaPreview: encoded,
	})
	require.NoError(t, err)
	require.True(t, v.IsCorrect, v.Message)
}

func TestJudgeCancelledWhileWaiting(t *testing.T) {
	o, conn := newTestOrchestrator(t, config.PolicyLock, false)
	held, err := o.isolation.Acquire(context.Background(), "busy", nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, held.Release(context.Background())) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = o.Judge(ctx, Request{
		StudentSQL:   "SELECT 1",
		ReferenceSQL: "SELECT 1",
		QuestionKey:  "busy",
	})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, "sqlite", conn.Dialect())
}

// Two questions provision a table with the same name but different rows.
// Judging them concurrently must never let one attempt read the other's
// dataset.
func TestJudgeConcurrentIsolation(t *testing.T) {
	previews := []string{
		`{"tables": [{"name": "items", "columns": ["id", "label"], "rows": [{"id": 1, "label": "a"}, {"id": 2, "label": "b"}]}]}`,
		`{"tables": [{"name": "items", "columns": ["id", "label"], "rows": [{"id": 1, "label": "x"}, {"id": 2, "label": "y"}, {"id": 3, "label": "z"}]}]}`,
	}
	references := []string{
		"SELECT 'a' AS label UNION ALL SELECT 'b'",
		"SELECT 'x' AS label UNION ALL SELECT 'y' UNION ALL SELECT 'z'",
	}

	for _, policy := range []string{config.PolicyLock, config.PolicyScratch} {
		t.Run(policy, func(t *testing.T) {
			o, conn := newTestOrchestrator(t, policy, false)
			// The shared cache lets several pooled connections see one
			// in-memory database, so only the isolation policy keeps the
			// attempts apart.
			conn.DB().SetMaxOpenConns(8)
			g, ctx := errgroup.WithContext(context.Background())
			for i := 0; i < 16; i++ {
				q := i % 2
				g.Go(func() error {
					v, err := o.Judge(ctx, Request{
						StudentSQL:    "SELECT label FROM items",
						ReferenceSQL:  references[q],
						SchemaPreview: json.RawMessage(previews[q]),
						QuestionKey:   fmt.Sprintf("items-%d", q),
					})
					if err != nil {
						return err
					}
					if !v.IsCorrect {
						return fmt.Errorf("question %d: %s", q, v.Message)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
		})
	}
}

func TestLockIsolationExcludesSharedTables(t *testing.T) {
	ctx := context.Background()
	conn := testutils.SQLiteConn(t)
	conn.DB().SetMaxOpenConns(4)
	iso := NewLockIsolation(conn)

	planFor := func(tables ...string) *provision.Plan {
		p := &provision.Plan{}
		for _, tbl := range tables {
			p.Statements = append(p.Statements, provision.Statement{Kind: provision.DropTable, Table: tbl})
		}
		return p
	}

	held, err := iso.Acquire(ctx, "q1", planFor("Items"))
	require.NoError(t, err)

	for _, tc := range []struct {
		desc        string
		questionKey string
		plan        *provision.Plan
		blocked     bool
	}{
		{desc: "same question", questionKey: "q1", blocked: true},
		{desc: "same table other question", questionKey: "q2", plan: planFor("items"), blocked: true},
		{desc: "other table", questionKey: "q3", plan: planFor("orders")},
		{desc: "no key", questionKey: ""},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			sess, err := iso.Acquire(ctx, tc.questionKey, tc.plan)
			if tc.blocked {
				require.ErrorIs(t, err, context.DeadlineExceeded)
				return
			}
			require.NoError(t, err)
			require.NoError(t, sess.Release(ctx))
		})
	}

	require.NoError(t, held.Release(ctx))
	sess, err := iso.Acquire(ctx, "q2", planFor("items"))
	require.NoError(t, err)
	require.NoError(t, sess.Release(ctx))
}

func TestLockKeys(t *testing.T) {
	require.Empty(t, lockKeys("", nil))
	require.Equal(t, []string{"question:q1"}, lockKeys("q1", nil))
}

func TestKeyedLock(t *testing.T) {
	l := newKeyedLock()
	unlock, err := l.lockAll(context.Background(), []string{"b", "a", "b"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.lockAll(ctx, []string{"c", "a"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := l.lockAll(context.Background(), []string{"a", "c"})
	require.NoError(t, err)
	unlock2()
	require.Empty(t, l.keys)
}
