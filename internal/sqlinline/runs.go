package sqlinline

const QStartGenerationRun = `--sql 3b7f0d52-e8a1-4c96-b4d3-9a2e6f1c8b70
insert into generation_runs(result_id, status, candidate_count, error_message, started_at, updated_at)
values ($1::uuid, 'running', $2::int, null, now(), now())
on conflict (result_id) do update
set status          = 'running',
    candidate_count = excluded.candidate_count,
    error_message   = null,
    started_at      = now(),
    updated_at      = now();
`

const QTouchGenerationRun = `--sql 7d5e2b90-3c14-4f6a-9b81-e0a2c6d4f357
update generation_runs
set updated_at = now()
where result_id = $1::uuid
  and status = 'running';
`

const QFinishGenerationRun = `--sql 9e2d4c81-7a3f-4b05-a6e9-0c1b8d5f2a47
update generation_runs
set status        = $2::text,
    error_message = nullif($3::text, ''),
    updated_at    = now()
where result_id = $1::uuid
  and status = 'running';
`

const QSelectGenerationRun = `--sql 5a0c9f36-2d7e-4e18-b1a4-6f3e8c2d9b05
select result_id, status, candidate_count, coalesce(error_message, ''), started_at, updated_at
from generation_runs
where result_id = $1::uuid;
`

const QDeleteGenerationRun = `--sql e6b31a08-4f9c-4d72-8c5e-1a7d0b3f6e29
delete from generation_runs
where result_id = $1::uuid;
`

const QFailStaleGenerationRuns = `--sql c14e7b29-5d83-4a6f-9e02-b8f3a1d6c754
update generation_runs
set status        = 'failed',
    error_message = $2::text,
    updated_at    = now()
where status = 'running'
  and updated_at < $1::timestamptz;
`
